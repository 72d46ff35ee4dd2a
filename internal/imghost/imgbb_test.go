package imghost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("key") != "imgbb-key" {
			t.Errorf("wrong key: %q", r.PostForm.Get("key"))
		}
		if r.PostForm.Get("image") != "aGVsbG8=" {
			t.Errorf("wrong image: %q", r.PostForm.Get("image"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"url":"https://i.ibb.co/abc/img.jpg"}}`))
	}))
	defer srv.Close()

	c := &Client{Endpoint: srv.URL}
	url, err := c.Upload(context.Background(), "imgbb-key", "aGVsbG8=")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://i.ibb.co/abc/img.jpg" {
		t.Fatalf("wrong url: %q", url)
	}
}

func TestUpload_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":{"message":"Invalid API key"}}`))
	}))
	defer srv.Close()

	c := &Client{Endpoint: srv.URL}
	_, err := c.Upload(context.Background(), "bad-key", "aGVsbG8=")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

func TestUpload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{Endpoint: srv.URL}
	_, err := c.Upload(context.Background(), "key", "aGVsbG8=")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

func TestUpload_GarbageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := &Client{Endpoint: srv.URL}
	_, err := c.Upload(context.Background(), "key", "aGVsbG8=")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}
