package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/coopa/backend/internal/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	store   string
	baseURL string
	posts   atomic.Int32
	status  atomic.Int32
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{store: filepath.Join(t.TempDir(), "offline.db")}
	env.status.Store(http.StatusCreated)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		env.posts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(env.status.Load()))
		w.Write([]byte(`{"itemName":"Rice","quantity":12}`))
	}))
	t.Cleanup(srv.Close)
	env.baseURL = srv.URL + "/api/v1"
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--store", e.store, "--base-url", e.baseURL}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCLI_EnqueueProcess(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "enqueue", "POST", "/requests", "--data", `{"itemName":"Rice","quantity":10}`)
	require.NoError(t, err)
	assert.Equal(t, "Queued item 1\n", out)

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Sync queue (1):")
	assert.Contains(t, out, "/requests")

	out, err = env.run(t, "process")
	require.NoError(t, err)
	assert.Equal(t, "Synced 1, retried 0, failed 0, conflicts 0; 0 pending\n", out)
	assert.Equal(t, int32(1), env.posts.Load())

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "Sync queue is empty.\n", out)
}

func TestCLI_EnqueueValidation(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "enqueue", "POST", "/requests")
	var verr *offline.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = env.run(t, "enqueue", "POST", "/requests", "--data", "{not json")
	assert.EqualError(t, err, "--data must be valid JSON")

	_, err = env.run(t, "--strategy", "coin-flip", "process")
	assert.EqualError(t, err, `unknown conflict strategy "coin-flip"`)
}

func TestCLI_ConflictRetryPurge(t *testing.T) {
	env := newCLIEnv(t)
	env.status.Store(http.StatusConflict)

	_, err := env.run(t, "enqueue", "PUT", "/requests/r1", "--data", `{"itemName":"Rice","quantity":10}`)
	require.NoError(t, err)

	out, err := env.run(t, "--strategy", "user-choice", "process")
	require.NoError(t, err)
	assert.Equal(t, "Synced 0, retried 0, failed 1, conflicts 1; 0 pending\n", out)

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Data Changed Remotely")
	assert.Contains(t, out, "quantity: local=10 remote=12")

	out, err = env.run(t, "status", "--json")
	require.NoError(t, err)
	var items []offline.QueueItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, offline.StatusFailed, items[0].Status)

	out, err = env.run(t, "retry", "1")
	require.NoError(t, err)
	assert.Equal(t, "Item 1 queued for retry\n", out)

	_, err = env.run(t, "retry", "1")
	assert.Error(t, err)
	_, err = env.run(t, "retry", "42")
	assert.EqualError(t, err, "no sync item 42")
	_, err = env.run(t, "retry", "abc")
	assert.EqualError(t, err, `invalid item id "abc"`)

	_, err = env.run(t, "--strategy", "user-choice", "process")
	require.NoError(t, err)
	out, err = env.run(t, "purge")
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 failed items and 0 expired cache entries\n", out)
}

func TestCLI_ProcessOffline(t *testing.T) {
	env := newCLIEnv(t)
	env.baseURL = "http://127.0.0.1:1/api/v1"

	out, err := env.run(t, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "Server unreachable")
}
