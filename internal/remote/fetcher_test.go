package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

func newTestFetcher(total time.Duration) *Fetcher {
	return NewFetcher(config.RemoteConfig{
		ConnectTimeout: total,
		TotalTimeout:   total,
		MaxBytes:       1 << 20,
	})
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher(2 * time.Second)
	data, name, err := f.Fetch(context.Background(), srv.URL+"/photos/cat.png?size=big")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("data = %q", data)
	}
	if name != "cat.png" {
		t.Fatalf("name = %q", name)
	}
}

func TestFetchNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(2 * time.Second)
	_, _, err := f.Fetch(context.Background(), srv.URL+"/missing.png")
	if !errors.Is(err, errors.CodeRemoteNotFound) {
		t.Fatalf("expected REMOTE_NOT_FOUND, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := newTestFetcher(50 * time.Millisecond)
	_, _, err := f.Fetch(context.Background(), srv.URL+"/slow.png")
	if !errors.Is(err, errors.CodeRemoteTimeout) {
		t.Fatalf("expected REMOTE_FETCH_TIMEOUT, got %v", err)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/start.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final.png", http.StatusFound)
	})
	mux.HandleFunc("/final.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("redirected"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(2 * time.Second)
	data, _, err := f.Fetch(context.Background(), srv.URL+"/start.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "redirected" {
		t.Fatalf("data = %q", data)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 128))
	}))
	defer srv.Close()

	f := NewFetcher(config.RemoteConfig{
		ConnectTimeout: time.Second,
		TotalTimeout:   time.Second,
		MaxBytes:       64,
	})
	_, _, err := f.Fetch(context.Background(), srv.URL+"/big.png")
	if !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(time.Second)
	_, _, err := f.Fetch(context.Background(), "not-a-url")
	if !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://cdn.example.com/a/b/photo.jpg":       "photo.jpg",
		"https://cdn.example.com/a/b/photo.jpg?x=1#f": "photo.jpg",
		"https://cdn.example.com/":                    "",
	}
	for in, want := range cases {
		if got := FilenameFromURL(in); got != want {
			t.Fatalf("FilenameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
