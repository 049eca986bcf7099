package symbols

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/openalgo/gateway/internal/httpx"
)

// ContractSource downloads and parses one broker's master contract.
type ContractSource interface {
	Broker() string
	Fetch(ctx context.Context) ([]SymToken, error)
}

// RecordFunc maps one CSV record onto a SymToken row. Returning false skips
// the record; master contracts routinely carry rows the gateway cannot trade.
type RecordFunc func(record []string) (SymToken, bool)

// CSVSource fetches a broker-published master-contract CSV over HTTP and
// parses it with a per-broker column mapping.
type CSVSource struct {
	broker string
	client *httpx.Client
	path   string
	parse  RecordFunc
}

// NewCSVSource builds a master-contract source for the given broker.
func NewCSVSource(broker string, client *httpx.Client, path string, parse RecordFunc) *CSVSource {
	return &CSVSource{broker: broker, client: client, path: path, parse: parse}
}

// Broker names the broker this source feeds.
func (s *CSVSource) Broker() string { return s.broker }

// Fetch downloads and parses the master contract.
func (s *CSVSource) Fetch(ctx context.Context) ([]SymToken, error) {
	body, err := s.client.Do(ctx, httpx.Request{Method: http.MethodGet, Path: s.path})
	if err != nil {
		return nil, fmt.Errorf("download master contract: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse master contract csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// First record is the header row in every broker's published file.
	rows := make([]SymToken, 0, len(records)-1)
	for _, record := range records[1:] {
		row, ok := s.parse(record)
		if !ok || !row.Valid() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Refresher periodically reloads every registered master contract into the
// store. One broker failing does not block the others.
type Refresher struct {
	store    Store
	sources  []ContractSource
	interval time.Duration
	logger   *log.Logger
	onReload func(broker string, rows int)
}

// NewRefresher constructs a refresher over the given sources.
func NewRefresher(store Store, sources []ContractSource, interval time.Duration, logger *log.Logger) *Refresher {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Refresher{store: store, sources: sources, interval: interval, logger: logger}
}

// OnReload registers a hook invoked after each successful broker reload.
func (r *Refresher) OnReload(fn func(broker string, rows int)) {
	r.onReload = fn
}

// RefreshAll reloads every source once, returning the first error seen after
// attempting all of them.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	var firstErr error
	for _, source := range r.sources {
		rows, err := source.Fetch(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", source.Broker(), err)
			}
			if r.logger != nil {
				r.logger.Printf("master contract fetch failed: broker=%s err=%v", source.Broker(), err)
			}
			continue
		}
		if err := r.store.ReplaceAll(ctx, source.Broker(), rows); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", source.Broker(), err)
			}
			if r.logger != nil {
				r.logger.Printf("master contract store refresh failed: broker=%s err=%v", source.Broker(), err)
			}
			continue
		}
		if r.logger != nil {
			r.logger.Printf("master contract refreshed: broker=%s rows=%d", source.Broker(), len(rows))
		}
		if r.onReload != nil {
			r.onReload(source.Broker(), len(rows))
		}
	}
	return firstErr
}

// Run refreshes immediately, then on every interval tick until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.RefreshAll(ctx); err != nil && r.logger != nil {
		r.logger.Printf("initial master contract refresh: %v", err)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshAll(ctx); err != nil && r.logger != nil {
				r.logger.Printf("scheduled master contract refresh: %v", err)
			}
		}
	}
}
