package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hoaworks/metergate/domain/quota"
)

func TestRenderHappyPath(t *testing.T) {
	var gotAuth, gotFeature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("path = %s, want /render", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req struct {
			Feature string          `json:"feature"`
			Params  json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotFeature = req.Feature

		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example.com/out.pdf"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key-123", 5*time.Second)
	url, err := c.Render(context.Background(), quota.FeatureViolationLetters, `{"violation":"parking"}`)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if url != "https://cdn.example.com/out.pdf" {
		t.Errorf("url = %q", url)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("Authorization = %q, want Bearer key-123", gotAuth)
	}
	if gotFeature != "violation_letters" {
		t.Errorf("feature = %q, want violation_letters", gotFeature)
	}
}

func TestRenderServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	_, err := c.Render(context.Background(), quota.FeatureVideos, "{}")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestRenderConnectionRefusedIsUnavailable(t *testing.T) {
	c := New("http://127.0.0.1:1", "", time.Second)
	_, err := c.Render(context.Background(), quota.FeatureVideos, "{}")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestRenderRejectionIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad params", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	_, err := c.Render(context.Background(), quota.FeatureVideos, "{}")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("a 4xx rejection must not read as unavailable")
	}
}
