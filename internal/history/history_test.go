package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/linguahub/translation-gateway/internal/resilience"
)

func testExchange() Exchange {
	return Exchange{
		UserID:         "u1",
		Username:       "alice",
		Room:           "lobby",
		SourceText:     "Hello",
		TranslatedText: "Namaste",
		SourceLang:     "en-US",
		TargetLang:     "hi",
		Kind:           "text",
		Timestamp:      time.Now(),
	}
}

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestHTTPRecorderPostsExchange(t *testing.T) {
	var got Exchange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	rec := NewHTTPRecorder(server.URL, fastRetry(), zerolog.Nop())
	if err := rec.Record(context.Background(), testExchange()); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got.Username != "alice" || got.TranslatedText != "Namaste" {
		t.Errorf("Unexpected payload: %+v", got)
	}
	if got.Room != "lobby" || got.Kind != "text" {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestHTTPRecorderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := NewHTTPRecorder(server.URL, fastRetry(), zerolog.Nop())
	if err := rec.Record(context.Background(), testExchange()); err == nil {
		t.Error("Expected error on 500 response")
	}
}

func TestHTTPRecorderRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rec := NewHTTPRecorder(server.URL, fastRetry(), zerolog.Nop())
	if err := rec.Record(context.Background(), testExchange()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls)
	}
}

func TestNopRecorder(t *testing.T) {
	if err := (NopRecorder{}).Record(context.Background(), testExchange()); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
