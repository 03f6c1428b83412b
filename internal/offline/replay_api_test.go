package offline

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coopa/backend/internal/config"
	"github.com/coopa/backend/internal/handlers"
	"github.com/coopa/backend/internal/middleware"
	"github.com/coopa/backend/internal/repository"
	"github.com/coopa/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAPIServer serves the cooperative routes with every request
// authenticated as userID.
func newAPIServer(t *testing.T, userID string) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore()
	coops := handlers.NewCooperativeHandler(services.NewCooperativeService(store), store)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), userID)))
			})
		})
		r.Post("/cooperatives/register", coops.Register)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessQueue_APIConflictEnvelope(t *testing.T) {
	srv := newAPIServer(t, "user-1")
	store, clock := newTestStore(t)
	p := NewProcessor(store, NewHTTPReplayer(srv.URL+"/api/v1", "token", 5*time.Second), testSyncConfig(config.Merge))
	p.now = clock.Now
	ctx := t.Context()

	first, err := store.Enqueue(ctx, "POST", "/cooperatives/register", map[string]string{"name": "Unity"})
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, "POST", "/cooperatives/register", map[string]string{"name": "Unity"})
	require.NoError(t, err)

	result, err := p.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Synced: 1, Conflicts: 1, Failed: 1}, result)

	_, err = store.GetItem(ctx, first)
	assert.ErrorIs(t, err, ErrNotFound)

	item, err := store.GetItem(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, 0, item.Retries)
	assert.Contains(t, item.LastError, "awaiting approval")
	assert.JSONEq(t, `{"name":"Unity"}`, string(item.Data))
	require.NotNil(t, item.Conflict)
	assert.Equal(t, config.UserChoice, item.Conflict.Strategy)
	assert.Nil(t, item.Conflict.Remote)
	assert.Nil(t, item.Conflict.Merged)

	// Nothing is due any more; a later pass must not replay the item.
	clock.Advance(time.Minute)
	result, err = p.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{}, result)
}

func TestProcessQueue_APIValidationError(t *testing.T) {
	srv := newAPIServer(t, "user-1")
	store, clock := newTestStore(t)
	p := NewProcessor(store, NewHTTPReplayer(srv.URL+"/api/v1", "token", 5*time.Second), testSyncConfig(config.Merge))
	p.now = clock.Now
	ctx := t.Context()

	id, err := store.Enqueue(ctx, "POST", "/cooperatives/register", map[string]any{"name": "Unity", "_merged": true})
	require.NoError(t, err)

	result, err := p.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Failed: 1}, result)

	item, err := store.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, 1, item.Retries)
	assert.Contains(t, item.LastError, "server responded 400")
}
