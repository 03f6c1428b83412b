package offline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coopa/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReplayer answers each URL with the queued responses in order and
// then repeats the last one.
type scriptedReplayer struct {
	mu      sync.Mutex
	answers map[string][]replayAnswer
	calls   []QueueItem
}

type replayAnswer struct {
	status int
	body   string
	err    error
}

func newScriptedReplayer() *scriptedReplayer {
	return &scriptedReplayer{answers: make(map[string][]replayAnswer)}
}

func (r *scriptedReplayer) on(url string, answers ...replayAnswer) {
	r.answers[url] = answers
}

func (r *scriptedReplayer) Replay(_ context.Context, item QueueItem) (*ReplayResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, item)

	queue := r.answers[item.URL]
	if len(queue) == 0 {
		return &ReplayResult{StatusCode: http.StatusOK}, nil
	}
	a := queue[0]
	if len(queue) > 1 {
		r.answers[item.URL] = queue[1:]
	}
	if a.err != nil {
		return nil, a.err
	}
	res := &ReplayResult{StatusCode: a.status}
	if a.body != "" {
		res.Body = json.RawMessage(a.body)
	}
	return res, nil
}

func testSyncConfig(strategy config.ConflictStrategy) *config.SyncConfig {
	return &config.SyncConfig{
		MaxRetries:  3,
		RetryDelays: []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		Strategy:    strategy,
	}
}

func newTestProcessor(t *testing.T, strategy config.ConflictStrategy) (*Processor, *Store, *scriptedReplayer, *fakeClock) {
	t.Helper()
	store, clock := newTestStore(t)
	replayer := newScriptedReplayer()
	p := NewProcessor(store, replayer, testSyncConfig(strategy))
	p.now = clock.Now
	return p, store, replayer, clock
}

func TestValidateItem(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		url      string
		data     string
		problems []string
	}{
		{"valid post", "POST", "/requests/single", `{"a":1}`, nil},
		{"get without body", "GET", "/escrows/e1", "", nil},
		{"bad method", "FETCH", "/x", `{}`, []string{"Invalid HTTP method"}},
		{"absolute url", "POST", "http://evil/x", `{}`, []string{"Invalid URL"}},
		{"missing data", "PUT", "/x", "", []string{"Data required for non-GET requests"}},
		{"null data", "DELETE", "/x", "null", []string{"Data required for non-GET requests"}},
		{"everything wrong", "TRACE", "x", "", []string{"Invalid HTTP method", "Invalid URL", "Data required for non-GET requests"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItem(tt.method, tt.url, json.RawMessage(tt.data))
			if tt.problems == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.problems, verr.Problems)
		})
	}
}

func TestStore_Enqueue(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := t.Context()

	id, err := store.Enqueue(ctx, "post", "/requests/single", map[string]any{"amount": 5000})
	require.NoError(t, err)

	item, err := store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "POST", item.Method)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 0, item.Retries)
	assert.True(t, item.CreatedAt.Equal(clock.Now()))
	assert.JSONEq(t, `{"amount":5000}`, string(item.Data))

	_, err = store.Enqueue(ctx, "POST", "/x", nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	n, err := store.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetItem(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessQueue_Success(t *testing.T) {
	p, store, replayer, _ := newTestProcessor(t, config.ServerWins)
	ctx := t.Context()

	_, err := store.Enqueue(ctx, "POST", "/first", map[string]int{"n": 1})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, "POST", "/second", map[string]int{"n": 2})
	require.NoError(t, err)

	result, err := p.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Synced: 2}, result)

	require.Len(t, replayer.calls, 2)
	assert.Equal(t, "/first", replayer.calls[0].URL)
	assert.Equal(t, "/second", replayer.calls[1].URL)

	items, err := store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestProcessQueue_Backoff(t *testing.T) {
	p, store, replayer, clock := newTestProcessor(t, config.ServerWins)
	ctx := t.Context()

	replayer.on("/flaky", replayAnswer{err: errors.New("connection refused")})
	id, err := store.Enqueue(ctx, "POST", "/flaky", map[string]int{"n": 1})
	require.NoError(t, err)

	wantDelays := []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}
	for attempt, delay := range wantDelays {
		result, err := p.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Retried: 1}, result, "attempt %d", attempt+1)

		item, err := store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, attempt+1, item.Retries)
		assert.Equal(t, StatusPending, item.Status)
		assert.Equal(t, "connection refused", item.LastError)
		assert.True(t, item.NextAttemptAt.Equal(clock.Now().Add(delay)))

		// Not yet due.
		result, err = p.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{}, result)

		clock.Advance(delay)
	}

	result, err := p.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Failed: 1}, result)

	item, err := store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, 4, item.Retries)
	assert.Len(t, replayer.calls, 4)

	n, err := store.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, store.Retry(ctx, id))
	item, err = store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 0, item.Retries)
	assert.Empty(t, item.LastError)

	assert.Error(t, store.Retry(ctx, id))
}

func TestProcessQueue_ServerError(t *testing.T) {
	p, store, replayer, _ := newTestProcessor(t, config.ServerWins)
	ctx := t.Context()

	replayer.on("/boom", replayAnswer{status: http.StatusInternalServerError})
	id, err := store.Enqueue(ctx, "PATCH", "/boom", map[string]int{"n": 1})
	require.NoError(t, err)

	result, err := p.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Retried: 1}, result)

	item, err := store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "server responded 500", item.LastError)
}

func TestProcessQueue_ClientErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   ProcessResult
		state  ItemStatus
	}{
		{"validation error is final", http.StatusBadRequest, `{"error":"name is required","code":"validation_failed","retryable":false}`, ProcessResult{Failed: 1}, StatusFailed},
		{"plain client error is final", http.StatusNotFound, ``, ProcessResult{Failed: 1}, StatusFailed},
		{"retryable client error backs off", http.StatusUnprocessableEntity, `{"error":"balance low","code":"insufficient_balance","retryable":true}`, ProcessResult{Retried: 1}, StatusPending},
		{"rate limit backs off", http.StatusTooManyRequests, `{"error":"slow down","code":"rate_limited","retryable":false}`, ProcessResult{Retried: 1}, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, store, replayer, _ := newTestProcessor(t, config.ServerWins)
			ctx := t.Context()
			replayer.on("/x", replayAnswer{status: tc.status, body: tc.body})
			id, err := store.Enqueue(ctx, "POST", "/x", map[string]int{"n": 1})
			require.NoError(t, err)

			result, err := p.ProcessQueue(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result)

			item, err := store.GetItem(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tc.state, item.Status)
			assert.Equal(t, 1, item.Retries)
		})
	}
}

func TestProcessQueue_Conflicts(t *testing.T) {
	remote := `{"title":"Rice","quantity":12}`

	t.Run("server wins drops the item", func(t *testing.T) {
		p, store, replayer, _ := newTestProcessor(t, config.ServerWins)
		ctx := t.Context()
		replayer.on("/r/1", replayAnswer{status: http.StatusConflict, body: remote})
		_, err := store.Enqueue(ctx, "PUT", "/r/1", map[string]any{"quantity": 10})
		require.NoError(t, err)

		result, err := p.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Conflicts: 1}, result)

		items, err := store.ListQueue(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("merge retries with merged data", func(t *testing.T) {
		p, store, replayer, clock := newTestProcessor(t, config.Merge)
		ctx := t.Context()
		replayer.on("/r/1",
			replayAnswer{status: http.StatusConflict, body: remote},
			replayAnswer{status: http.StatusOK})
		id, err := store.Enqueue(ctx, "PUT", "/r/1", map[string]any{"quantity": 10, "note": "urgent"})
		require.NoError(t, err)

		result, err := p.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Conflicts: 1, Retried: 1}, result)

		item, err := store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, item.Status)
		assert.Equal(t, 1, item.Retries)
		require.NotNil(t, item.Conflict)
		assert.Equal(t, config.Merge, item.Conflict.Strategy)

		require.NotNil(t, item.Conflict.MergedAt)
		assert.True(t, item.Conflict.MergedAt.Equal(clock.Now()))

		var data map[string]any
		require.NoError(t, json.Unmarshal(item.Data, &data))
		assert.Equal(t, map[string]any{"title": "Rice", "quantity": float64(12), "note": "urgent"}, data)

		clock.Advance(time.Second)
		result, err = p.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Synced: 1}, result)
		assert.JSONEq(t, string(item.Data), string(replayer.calls[1].Data))
	})

	t.Run("envelope with the current resource is merged", func(t *testing.T) {
		p, store, replayer, _ := newTestProcessor(t, config.Merge)
		ctx := t.Context()
		replayer.on("/r/1", replayAnswer{
			status: http.StatusConflict,
			body:   `{"error":"request changed","code":"conflict","retryable":true,"current":` + remote + `}`,
		})
		id, err := store.Enqueue(ctx, "PUT", "/r/1", map[string]any{"quantity": 10})
		require.NoError(t, err)

		_, err = p.ProcessQueue(ctx)
		require.NoError(t, err)

		item, err := store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, item.Status)
		assert.JSONEq(t, remote, string(item.Data))
	})

	t.Run("envelope without a remote version is parked under every strategy", func(t *testing.T) {
		for _, strategy := range []config.ConflictStrategy{config.ServerWins, config.Merge, config.UserChoice} {
			p, store, replayer, _ := newTestProcessor(t, strategy)
			ctx := t.Context()
			replayer.on("/r/1", replayAnswer{
				status: http.StatusConflict,
				body:   `{"error":"escrow was modified concurrently","code":"conflict","retryable":true}`,
			})
			id, err := store.Enqueue(ctx, "PUT", "/r/1", map[string]any{"quantity": 10})
			require.NoError(t, err)

			result, err := p.ProcessQueue(ctx)
			require.NoError(t, err)
			assert.Equal(t, ProcessResult{Conflicts: 1, Failed: 1}, result, strategy)

			item, err := store.GetItem(ctx, id)
			require.NoError(t, err, strategy)
			assert.Equal(t, StatusFailed, item.Status, strategy)
			assert.JSONEq(t, `{"quantity":10}`, string(item.Data), strategy)
			require.NotNil(t, item.Conflict)
			assert.Equal(t, "escrow was modified concurrently", item.Conflict.Reason)
		}
	})

	t.Run("user choice parks the item", func(t *testing.T) {
		p, store, replayer, _ := newTestProcessor(t, config.UserChoice)
		ctx := t.Context()
		replayer.on("/r/1", replayAnswer{status: http.StatusConflict, body: remote})
		id, err := store.Enqueue(ctx, "PUT", "/r/1", map[string]any{"quantity": 10})
		require.NoError(t, err)

		result, err := p.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Conflicts: 1, Failed: 1}, result)

		item, err := store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, item.Status)
		require.NotNil(t, item.Conflict)
		assert.JSONEq(t, `{"quantity":10}`, string(item.Conflict.Local))
		assert.JSONEq(t, remote, string(item.Conflict.Remote))
	})
}

func TestStore_PurgeFailed(t *testing.T) {
	p, store, replayer, _ := newTestProcessor(t, config.UserChoice)
	ctx := t.Context()

	replayer.on("/conflict", replayAnswer{status: http.StatusConflict, body: `{}`})
	replayer.on("/later", replayAnswer{err: errors.New("offline")})
	_, err := store.Enqueue(ctx, "POST", "/conflict", map[string]int{"n": 1})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, "POST", "/later", map[string]int{"n": 2})
	require.NoError(t, err)

	_, err = p.ProcessQueue(ctx)
	require.NoError(t, err)

	n, err := store.PurgeFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/later", items[0].URL)
}
