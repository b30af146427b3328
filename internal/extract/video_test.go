package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoExtractor_Extract(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", r.URL.Query().Get("url"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"Never Gonna Give You Up","author_name":"Rick Astley","description":"80s <classic>"}`))
	}))
	defer srv.Close()

	v := NewVideoExtractor(srv.Client(), srv.URL, 8)
	u := mustURL(t, "https://youtu.be/dQw4w9WgXcQ")

	res, err := v.Extract(context.Background(), u, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", res.Title)
	assert.Contains(t, res.Content, `src="https://www.youtube.com/embed/dQw4w9WgXcQ"`)
	assert.Contains(t, res.Content, "<p>80s &lt;classic&gt;</p>")
	assert.Equal(t, "dQw4w9WgXcQ", res.Strategy.VideoID)

	_, err = v.Extract(context.Background(), u, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second lookup should be served from cache")
}

func TestVideoExtractor_MetadataFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewVideoExtractor(srv.Client(), srv.URL, 0)
	_, err := v.Extract(context.Background(), mustURL(t, "https://www.youtube.com/watch?v=private"), "private")
	assert.ErrorIs(t, err, ErrMetadataFetchFailed)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, "MetadataFetchFailed", Kind(err))
}

func TestEmbedHTML_MissingDescription(t *testing.T) {
	out := EmbedHTML("abc", "")
	assert.True(t, strings.HasSuffix(out, "<p></p>"))
	assert.Contains(t, out, "/embed/abc\"")
}
