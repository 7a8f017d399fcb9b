package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats/yt-abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"views": 1200, "likes": 88, "comments": 7}`))
	}))
	t.Cleanup(srv.Close)

	source := NewHTTPSource(srv.URL + "/stats")
	stats, err := source.Stats(context.Background(), "yt-abc")
	require.NoError(t, err)
	assert.Equal(t, Stats{Views: 1200, Likes: 88, Comments: 7}, stats)
}

func TestHTTPSourceNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	source := NewHTTPSource(srv.URL)
	_, err := source.Stats(context.Background(), "yt-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPSourceBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	source := NewHTTPSource(srv.URL)
	_, err := source.Stats(context.Background(), "yt-abc")
	require.Error(t, err)
}
