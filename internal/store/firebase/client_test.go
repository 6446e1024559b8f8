package firebase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"progress-sync-service/internal/store"
)

type fakeDatabase struct {
	mu    sync.Mutex
	nodes map[string][]byte
}

func newFakeDatabase(t *testing.T, token string) (*httptest.Server, *fakeDatabase) {
	t.Helper()
	db := &fakeDatabase{nodes: map[string][]byte{}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("auth") != token {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Permission denied"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/users/{owner}/saves/current.json", func(w http.ResponseWriter, r *http.Request) {
		db.mu.Lock()
		defer db.mu.Unlock()
		node, ok := db.nodes[chi.URLParam(r, "owner")]
		if !ok {
			w.Write([]byte("null"))
			return
		}
		w.Write(node)
	})
	r.Put("/users/{owner}/saves/current.json", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.True(t, json.Valid(body))
		db.mu.Lock()
		db.nodes[chi.URLParam(r, "owner")] = body
		db.mu.Unlock()
		w.Write(body)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, db
}

func TestPutGet(t *testing.T) {
	srv, db := newFakeDatabase(t, "secret")
	c := New(Config{BaseURL: srv.URL + "/", AuthToken: "secret"})
	ctx := context.Background()

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	require.False(t, got.Exists)

	res, err := c.Put(ctx, "p1", store.Record{Fields: map[string]any{"coins": 5}, LastSaved: 200}, 42)
	require.NoError(t, err)
	require.Equal(t, store.PutResult{Status: store.PutOK}, res)
	db.mu.Lock()
	require.JSONEq(t, `{"coins":5,"lastSaved":200}`, string(db.nodes["p1"]))
	db.mu.Unlock()

	got, err = c.Get(ctx, "p1")
	require.NoError(t, err)
	require.True(t, got.Exists)
	require.Zero(t, got.Version)
	require.Equal(t, int64(200), got.Record.LastSaved)
}

func TestPermissionDenied(t *testing.T) {
	srv, _ := newFakeDatabase(t, "secret")
	c := New(Config{BaseURL: srv.URL, AuthToken: "wrong"})

	_, err := c.Put(context.Background(), "p1", store.Record{}, 0)
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Contains(t, err.Error(), "Permission denied")

	_, err = c.Get(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrUnavailable)
}
