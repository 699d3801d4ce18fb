package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pario-ai/chatrelay/pkg/models"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body models.ChatBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if len(body.Messages) != 2 || body.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.Header().Set("X-Request-ID", "req-1")
		json.NewEncoder(w).Encode(models.ChatResponse{Reply: "Hi!", Model: "gpt-4o-mini", Disclaimer: "d"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 5*time.Second)
	reply, err := c.Chat(context.Background(), []models.ConversationTurn{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Reply != "Hi!" || reply.Model != "gpt-4o-mini" || reply.Disclaimer != "d" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if !reply.CacheHit || reply.RequestID != "req-1" {
		t.Errorf("unexpected metadata %+v", reply)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"AI service error","details":"Incorrect API key provided"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Chat(context.Background(), []models.ConversationTurn{{Role: models.RoleUser, Content: "x"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Body.Details != "Incorrect API key provided" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Stats(context.Background(), 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Body.Error != "bad gateway" {
		t.Errorf("expected raw body as message, got %q", apiErr.Body.Error)
	}
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" || r.URL.Query().Get("recent") != "5" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		json.NewEncoder(w).Encode(models.StatsResponse{
			Cache:  models.CacheStats{Entries: 1, Capacity: 100, Hits: 2, Misses: 1},
			Usage:  []models.UsageSummary{{Model: "gpt-4o-mini", RequestCount: 3, TotalTokens: 15}},
			Recent: []models.UsageRecord{{RequestID: "req-3", Model: "gpt-4o-mini", CacheHit: true}},
		})
	}))
	defer srv.Close()

	stats, err := New(srv.URL, time.Second).Stats(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cache.Hits != 2 || len(stats.Usage) != 1 || stats.Usage[0].TotalTokens != 15 || len(stats.Recent) != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "GPAI backend running")
	}))
	defer srv.Close()

	got, err := New(srv.URL, time.Second).Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "GPAI backend running" {
		t.Errorf("unexpected health body %q", got)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := New(url, time.Second).Health(context.Background()); err == nil {
		t.Error("expected error from closed server")
	}
}
