package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradegate/internal/domain"
)

func TestJournalAppendAndRecent(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)
	events := []domain.OrderUpdate{
		{OrderID: "o-1", Symbol: "AAPL", Status: domain.OrderSubmitted, RemainingQty: 10, At: base},
		{OrderID: "o-1", Symbol: "AAPL", Status: domain.OrderFilled, FilledQty: 10, AvgFillPrice: 187.5, At: base.Add(time.Second)},
		{OrderID: "o-2", Symbol: "MSFT", Status: domain.OrderSubmitted, RemainingQty: 5, At: base.Add(2 * time.Second)},
	}
	for _, u := range events {
		if err := j.Append(ctx, u); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Recent returned %d events, want 3", len(recent))
	}
	// Newest first.
	if recent[0].OrderID != "o-2" {
		t.Errorf("recent[0].OrderID = %q, want o-2", recent[0].OrderID)
	}
	if recent[1].Status != domain.OrderFilled || recent[1].AvgFillPrice != 187.5 {
		t.Errorf("recent[1] = %+v, want filled at 187.5", recent[1])
	}
	if !recent[2].At.Equal(base) {
		t.Errorf("recent[2].At = %v, want %v", recent[2].At, base)
	}
}

func TestJournalRecentLimit(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := j.Append(ctx, domain.OrderUpdate{OrderID: "o-1", Status: domain.OrderSubmitted, At: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("Recent(2) returned %d events", len(recent))
	}
}

func TestJournalHistory(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	ctx := context.Background()
	for _, u := range []domain.OrderUpdate{
		{OrderID: "o-1", Status: domain.OrderSubmitted, At: time.Now()},
		{OrderID: "o-2", Status: domain.OrderSubmitted, At: time.Now()},
		{OrderID: "o-1", Status: domain.OrderFilled, At: time.Now()},
	} {
		if err := j.Append(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := j.History(ctx, "o-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("History returned %d events, want 2", len(hist))
	}
	// Oldest first.
	if hist[0].Status != domain.OrderSubmitted || hist[1].Status != domain.OrderFilled {
		t.Errorf("history order wrong: %v, %v", hist[0].Status, hist[1].Status)
	}
}

func TestBarCacheRoundTrip(t *testing.T) {
	c := NewBarCache(t.TempDir())
	req := domain.HistoryRequest{
		Duration: "1 D",
		BarSize:  "1 hour",
		End:      time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC),
	}
	bars := []domain.Bar{
		{Time: req.End.Add(-2 * time.Hour), Open: 100, High: 101, Low: 99.5, Close: 100.5, Volume: 1200},
		{Time: req.End.Add(-time.Hour), Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 900},
	}

	if _, ok := c.Load("AAPL", req); ok {
		t.Fatal("unexpected cache hit before store")
	}
	if err := c.Store("AAPL", req, bars); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := c.Load("AAPL", req)
	if !ok {
		t.Fatal("cache miss after store")
	}
	if len(got) != len(bars) {
		t.Fatalf("loaded %d bars, want %d", len(got), len(bars))
	}
	for i := range bars {
		if !got[i].Time.Equal(bars[i].Time) || got[i].Close != bars[i].Close || got[i].Volume != bars[i].Volume {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
}

func TestBarCacheKeyedByQuery(t *testing.T) {
	c := NewBarCache(t.TempDir())
	end := time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC)
	req1 := domain.HistoryRequest{Duration: "1 D", BarSize: "1 hour", End: end}
	req2 := domain.HistoryRequest{Duration: "2 D", BarSize: "1 hour", End: end}

	if err := c.Store("AAPL", req1, []domain.Bar{{Time: end, Close: 1}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Load("AAPL", req2); ok {
		t.Error("different duration hit the same cache entry")
	}
	if _, ok := c.Load("MSFT", req1); ok {
		t.Error("different symbol hit the same cache entry")
	}
}

func TestBarCacheSkipsOpenEndedQueries(t *testing.T) {
	c := NewBarCache(t.TempDir())
	req := domain.HistoryRequest{Duration: "1 D", BarSize: "1 hour"} // no end time

	if c.Cacheable(req) {
		t.Error("open-ended query reported cacheable")
	}
	if err := c.Store("AAPL", req, []domain.Bar{{Close: 1}}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := c.Load("AAPL", req); ok {
		t.Error("open-ended query served from cache")
	}
}

func TestBarCacheForexSymbolPath(t *testing.T) {
	c := NewBarCache(t.TempDir())
	req := domain.HistoryRequest{
		Duration: "1 D", BarSize: "1 hour", WhatToShow: "MIDPOINT",
		End: time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC),
	}
	if err := c.Store("EUR.USD", req, []domain.Bar{{Time: req.End, Close: 1.09}}); err != nil {
		t.Fatalf("Store forex: %v", err)
	}
	if _, ok := c.Load("EUR.USD", req); !ok {
		t.Error("forex cache entry not found after store")
	}
}
