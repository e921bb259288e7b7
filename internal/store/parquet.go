package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradegate/internal/domain"
)

// BarCache caches historical bar responses as Parquet files on disk. Only
// queries with an explicit end time are cacheable: their result set is
// immutable, so a hit can be served without touching the upstream.
type BarCache struct {
	DataDir string
}

// NewBarCache creates a BarCache rooted at dataDir.
func NewBarCache(dataDir string) *BarCache {
	return &BarCache{DataDir: dataDir}
}

// barRecord is the on-disk Parquet schema.
type barRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// Cacheable reports whether the request's result set is immutable.
func (c *BarCache) Cacheable(req domain.HistoryRequest) bool {
	return !req.End.IsZero()
}

// Load returns the cached bars for the query, or ok=false on a miss.
func (c *BarCache) Load(symbol string, req domain.HistoryRequest) ([]domain.Bar, bool) {
	if !c.Cacheable(req) {
		return nil, false
	}
	records, err := parquet.ReadFile[barRecord](c.path(symbol, req))
	if err != nil {
		return nil, false
	}
	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, true
}

// Store writes the bars for the query. Non-cacheable queries and empty
// results are skipped; write failures are reported but never fatal to the
// request path.
func (c *BarCache) Store(symbol string, req domain.HistoryRequest, bars []domain.Bar) error {
	if !c.Cacheable(req) || len(bars) == 0 {
		return nil
	}

	records := make([]barRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, barRecord{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	path := c.path(symbol, req)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing bar cache %s: %w", path, err)
	}
	return nil
}

// path builds <DataDir>/bars/<SYMBOL>/<query-hash>.parquet. The symbol is
// sanitized so forex pairs like EUR.USD stay filesystem-safe.
func (c *BarCache) path(symbol string, req domain.HistoryRequest) string {
	sym := strings.ToUpper(strings.ReplaceAll(symbol, ".", "_"))

	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%t|%d",
		req.Duration, req.BarSize, req.WhatToShow, req.UseRTH, req.End.UTC().Unix())))
	name := hex.EncodeToString(h[:8])

	return filepath.Join(c.DataDir, "bars", sym, name+".parquet")
}
