package symbols

import (
	"context"
	"strings"
	"sync"

	"github.com/openalgo/gateway/internal/schema"
)

type symbolKey struct {
	symbol   string
	exchange schema.Exchange
}

type tokenKey struct {
	token    string
	exchange schema.Exchange
}

type brokerIndex struct {
	bySymbol   map[symbolKey]SymToken
	byToken    map[tokenKey]SymToken
	byBrSymbol map[symbolKey]SymToken
	count      int
}

// MemoryStore is the in-process Store implementation. Refresh builds a new
// index off to the side and swaps it in under the write lock, so readers
// never observe a half-loaded master contract.
type MemoryStore struct {
	mu      sync.RWMutex
	brokers map[string]*brokerIndex
}

// NewMemoryStore creates an empty in-memory symbol store.
func NewMemoryStore() *MemoryStore {
	store := new(MemoryStore)
	store.brokers = make(map[string]*brokerIndex)
	return store
}

// ReplaceAll swaps the broker's rows for the provided master-contract rows.
func (s *MemoryStore) ReplaceAll(_ context.Context, broker string, rows []SymToken) error {
	idx := &brokerIndex{
		bySymbol:   make(map[symbolKey]SymToken, len(rows)),
		byToken:    make(map[tokenKey]SymToken, len(rows)),
		byBrSymbol: make(map[symbolKey]SymToken, len(rows)),
	}
	for _, row := range rows {
		if !row.Valid() {
			continue
		}
		idx.bySymbol[symbolKey{normalize(row.Symbol), row.Exchange}] = row
		idx.byToken[tokenKey{strings.TrimSpace(row.Token), row.Exchange}] = row
		idx.byBrSymbol[symbolKey{normalize(row.BrSymbol), row.Exchange}] = row
		idx.count++
	}

	s.mu.Lock()
	s.brokers[normalize(broker)] = idx
	s.mu.Unlock()
	return nil
}

// GetToken resolves the broker token for a canonical (symbol, exchange).
func (s *MemoryStore) GetToken(_ context.Context, symbol string, exchange schema.Exchange) (string, error) {
	row, ok := s.lookupSymbol(symbol, exchange)
	if !ok {
		return "", notFound("token", symbol, exchange)
	}
	return row.Token, nil
}

// GetSymbol resolves the full row for a (token, exchange).
func (s *MemoryStore) GetSymbol(_ context.Context, token string, exchange schema.Exchange) (SymToken, error) {
	key := tokenKey{strings.TrimSpace(token), exchange}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idx := range s.brokers {
		if row, ok := idx.byToken[key]; ok {
			return row, nil
		}
	}
	return SymToken{}, notFound("symbol", token, exchange)
}

// GetBrSymbol resolves the broker symbol for a canonical (symbol, exchange).
func (s *MemoryStore) GetBrSymbol(_ context.Context, symbol string, exchange schema.Exchange) (string, error) {
	row, ok := s.lookupSymbol(symbol, exchange)
	if !ok {
		return "", notFound("brsymbol", symbol, exchange)
	}
	return row.BrSymbol, nil
}

// GetOASymbol resolves the canonical symbol for a broker (brsymbol, exchange).
func (s *MemoryStore) GetOASymbol(_ context.Context, brsymbol string, exchange schema.Exchange) (string, error) {
	key := symbolKey{normalize(brsymbol), exchange}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idx := range s.brokers {
		if row, ok := idx.byBrSymbol[key]; ok {
			return row.Symbol, nil
		}
	}
	return "", notFound("oasymbol", brsymbol, exchange)
}

// Count reports the number of rows currently held for the broker.
func (s *MemoryStore) Count(_ context.Context, broker string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.brokers[normalize(broker)]
	if !ok {
		return 0, nil
	}
	return idx.count, nil
}

func (s *MemoryStore) lookupSymbol(symbol string, exchange schema.Exchange) (SymToken, bool) {
	key := symbolKey{normalize(symbol), exchange}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idx := range s.brokers {
		if row, ok := idx.bySymbol[key]; ok {
			return row, true
		}
	}
	return SymToken{}, false
}

func normalize(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
