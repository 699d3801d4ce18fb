package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/pario-ai/chatrelay/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	tr, err := New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.UsageRecord{
		RequestID:        "req-1",
		Model:            "gpt-4o-mini",
		UpstreamModel:    "gpt-4o-mini-2024-07-18",
		Turns:            3,
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		CreatedAt:        now,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := tr.Record(ctx, models.UsageRecord{RequestID: "req-2", Model: "gpt-4o-mini", CacheHit: true, Turns: 3}); err != nil {
		t.Fatal(err)
	}

	records, err := tr.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RequestID != "req-2" || !records[0].CacheHit {
		t.Errorf("expected newest cache-hit record first, got %+v", records[0])
	}
	if records[1].TotalTokens != 150 || records[1].UpstreamModel != "gpt-4o-mini-2024-07-18" {
		t.Errorf("unexpected record %+v", records[1])
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("zero CreatedAt should be filled in")
	}
}

func TestRecentLimit(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	for range 5 {
		_ = tr.Record(ctx, models.UsageRecord{Model: "gpt-4o-mini", TotalTokens: 1})
	}
	records, err := tr.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestTotalSince(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 3 {
		_ = tr.Record(ctx, models.UsageRecord{
			Model:        "gpt-4o-mini",
			PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	_ = tr.Record(ctx, models.UsageRecord{
		Model: "gpt-4o-mini", TotalTokens: 999,
		CreatedAt: now.Add(-48 * time.Hour),
	})

	total, err := tr.TotalSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if total != 450 {
		t.Errorf("expected 450, got %d", total)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_ = tr.Record(ctx, models.UsageRecord{Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	_ = tr.Record(ctx, models.UsageRecord{Model: "gpt-4o-mini", PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})
	_ = tr.Record(ctx, models.UsageRecord{Model: "gpt-4o-mini", PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})
	_ = tr.Record(ctx, models.UsageRecord{Model: "gpt-4o-mini", CacheHit: true})

	summaries, err := tr.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	mini := summaries[1]
	if mini.Model != "gpt-4o-mini" {
		t.Fatalf("expected models ordered by name, got %+v", summaries)
	}
	if mini.RequestCount != 3 || mini.CacheHits != 1 {
		t.Errorf("expected 3 requests with 1 cache hit, got %+v", mini)
	}
	if mini.TotalTokens != 60 || mini.TotalPrompt != 40 || mini.TotalCompletion != 20 {
		t.Errorf("unexpected totals %+v", mini)
	}
}

func TestTrackersAreIsolated(t *testing.T) {
	a := newTestTracker(t)
	b := newTestTracker(t)
	ctx := context.Background()

	_ = a.Record(ctx, models.UsageRecord{Model: "gpt-4o-mini", TotalTokens: 10})

	summaries, err := b.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected empty tracker, got %+v", summaries)
	}
}
