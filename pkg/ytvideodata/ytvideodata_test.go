package ytvideodata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFromOembed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oembed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"Trailer","author_name":"Studio","thumbnail_url":"https://img/1.jpg"}`))
	}))
	defer srv.Close()

	data, err := New(WithBaseURL(srv.URL)).Get(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Trailer", data.Title)
	assert.Equal(t, "Studio", data.AuthorName)
}

func TestGetFallsBackToPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oembed" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`<html><head><title>Private Cut</title>` +
			`<link itemprop="name" content="Someone"></head><body></body></html>`))
	}))
	defer srv.Close()

	data, err := New(WithBaseURL(srv.URL)).Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Private Cut", data.Title)
	assert.Equal(t, "Someone", data.AuthorName)
	assert.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", data.ThumbnailUrl)
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}
