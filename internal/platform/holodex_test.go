package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecondarySourceLiveForChannelParsesLiveVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization header = %q, want Bearer test-token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"abc123","title":"Live now 2024-05-01 12:34","status":"live"}]}`))
	}))
	defer srv.Close()

	s := NewSecondarySource(srv.URL, "test-token")
	rec, err := s.LiveForChannel(context.Background(), "chan1")
	if err != nil {
		t.Fatalf("LiveForChannel() error = %v", err)
	}
	if rec == nil {
		t.Fatal("expected a non-nil InfoRecord")
	}
	if rec.Online != Online {
		t.Fatalf("Online = %v, want Online", rec.Online)
	}
	if rec.Title != "Live now" {
		t.Fatalf("Title = %q, want date suffix stripped", rec.Title)
	}
}

func TestSecondarySourceLiveForChannelNoVideos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	s := NewSecondarySource(srv.URL, "")
	rec, err := s.LiveForChannel(context.Background(), "chan1")
	if err != nil {
		t.Fatalf("LiveForChannel() error = %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil InfoRecord for no videos, got %+v", rec)
	}
}
