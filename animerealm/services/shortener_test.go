package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShorten_ParsesJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api"))
		assert.Equal(t, "https://t.me/bot?start=x", r.URL.Query().Get("url"))
		w.Write([]byte(`{"status":"success","shortenedUrl":"https://sho.rt/abc"}`))
	}))
	defer srv.Close()

	s := NewShortener(ShortenerConfig{APIURL: srv.URL, APIKey: "key"})
	got := s.Shorten(context.Background(), "https://t.me/bot?start=x")
	assert.Equal(t, "https://sho.rt/abc", got)
}

func TestShorten_AcceptsBareURLResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("https://sho.rt/xyz\n"))
	}))
	defer srv.Close()

	s := NewShortener(ShortenerConfig{APIURL: srv.URL, APIKey: "key"})
	got := s.Shorten(context.Background(), "https://example.com/long")
	assert.Equal(t, "https://sho.rt/xyz", got)
}

func TestShorten_FallsBackOnGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("oops"))
	}))
	defer srv.Close()

	s := NewShortener(ShortenerConfig{APIURL: srv.URL, APIKey: "key"})
	got := s.Shorten(context.Background(), "https://example.com/long")
	assert.Equal(t, "https://example.com/long", got)
}

func TestShorten_FallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewShortener(ShortenerConfig{APIURL: srv.URL, APIKey: "key"})
	got := s.Shorten(context.Background(), "https://example.com/long")
	assert.Equal(t, "https://example.com/long", got)
}

func TestShorten_DisabledWithoutKey(t *testing.T) {
	s := NewShortener(ShortenerConfig{})
	got := s.Shorten(context.Background(), "https://example.com/long")
	assert.Equal(t, "https://example.com/long", got)
}
