package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"interview-agent/internal/gate"
)

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"url":"https://a.example/1","title":"a"},
			{"url":"https://a.example/1","title":"dup"},
			{"url":"","title":"empty"},
			{"url":"https://b.example/2","title":"b"}
		]}`))
	}))
	defer server.Close()

	client, err := NewTavily("key", server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewTavily: %v", err)
	}
	urls, err := client.Search(context.Background(), "backend engineer interview", 5, DepthAdvanced)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://a.example/1" || urls[1] != "https://b.example/2" {
		t.Fatalf("unexpected urls: %v", urls)
	}
	if got.Query != "backend engineer interview" || got.MaxResults != 5 || got.SearchDepth != "advanced" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestTavilySearchCapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"url":"https://1"},{"url":"https://2"},{"url":"https://3"}]}`))
	}))
	defer server.Close()

	client, _ := NewTavily("key", server.URL, time.Second)
	urls, err := client.Search(context.Background(), "q", 2, DepthBasic)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
}

func TestTavilyRateLimitRetriedThroughGate(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"rate limited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"url":"https://ok"}]}`))
	}))
	defer server.Close()

	client, _ := NewTavily("key", server.URL, time.Second)
	g := gate.New(gate.Config{MaxConcurrent: 1, MaxRetries: 2, InitialBackoff: time.Millisecond})
	urls, err := NewGated(client, g).Search(context.Background(), "q", 5, DepthAdvanced)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(urls) != 1 || calls != 2 {
		t.Fatalf("urls=%v calls=%d", urls, calls)
	}
}

func TestTavilyErrors(t *testing.T) {
	if _, err := NewTavily("", "", 0); err == nil {
		t.Fatalf("expected missing key error")
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer server.Close()

	client, _ := NewTavily("key", server.URL, time.Second)
	_, err := client.Search(context.Background(), "q", 5, DepthAdvanced)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if _, err := client.Search(context.Background(), "  ", 5, DepthAdvanced); err == nil {
		t.Fatalf("expected empty query error")
	}
	if _, err := (Unconfigured{}).Search(context.Background(), "q", 1, DepthBasic); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
