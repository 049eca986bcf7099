package symbols

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openalgo/gateway/internal/schema"
)

// PostgresStore persists the symbol table in PostgreSQL so multiple gateway
// processes share one master-contract refresh.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore backed by the provided pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var symtokenColumns = []string{
	"broker", "symbol", "brsymbol", "name", "exchange", "brexchange",
	"token", "expiry", "strike", "lotsize", "instrumenttype", "tick_size",
}

// ReplaceAll refreshes the broker's rows inside one transaction: delete
// everything, then bulk-insert the fresh master contract via COPY.
func (s *PostgresStore) ReplaceAll(ctx context.Context, broker string, rows []SymToken) error {
	broker = normalize(broker)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin symbol refresh: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM symtokens WHERE broker = $1`, broker); err != nil {
		return fmt.Errorf("clear symbol rows: %w", err)
	}

	source := make([][]any, 0, len(rows))
	for _, row := range rows {
		if !row.Valid() {
			continue
		}
		source = append(source, []any{
			broker,
			normalize(row.Symbol),
			strings.TrimSpace(row.BrSymbol),
			strings.TrimSpace(row.Name),
			string(row.Exchange),
			strings.TrimSpace(row.BrExchange),
			strings.TrimSpace(row.Token),
			strings.TrimSpace(row.Expiry),
			row.Strike,
			row.LotSize,
			strings.TrimSpace(row.InstrumentType),
			row.TickSize,
		})
	}
	if len(source) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"symtokens"}, symtokenColumns, pgx.CopyFromRows(source)); err != nil {
			return fmt.Errorf("bulk insert symbol rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit symbol refresh: %w", err)
	}
	return nil
}

// GetToken resolves the broker token for a canonical (symbol, exchange).
func (s *PostgresStore) GetToken(ctx context.Context, symbol string, exchange schema.Exchange) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT token FROM symtokens WHERE symbol = $1 AND exchange = $2 LIMIT 1`,
		normalize(symbol), string(exchange)).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("token", symbol, exchange)
	}
	if err != nil {
		return "", fmt.Errorf("query token: %w", err)
	}
	return token, nil
}

// GetSymbol resolves the full row for a (token, exchange).
func (s *PostgresStore) GetSymbol(ctx context.Context, token string, exchange schema.Exchange) (SymToken, error) {
	var row SymToken
	var exch string
	err := s.pool.QueryRow(ctx,
		`SELECT symbol, brsymbol, name, exchange, brexchange, token, expiry, strike, lotsize, instrumenttype, tick_size
		 FROM symtokens WHERE token = $1 AND exchange = $2 LIMIT 1`,
		strings.TrimSpace(token), string(exchange)).Scan(
		&row.Symbol, &row.BrSymbol, &row.Name, &exch, &row.BrExchange,
		&row.Token, &row.Expiry, &row.Strike, &row.LotSize, &row.InstrumentType, &row.TickSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return SymToken{}, notFound("symbol", token, exchange)
	}
	if err != nil {
		return SymToken{}, fmt.Errorf("query symbol: %w", err)
	}
	row.Exchange = schema.Exchange(exch)
	return row, nil
}

// GetBrSymbol resolves the broker symbol for a canonical (symbol, exchange).
func (s *PostgresStore) GetBrSymbol(ctx context.Context, symbol string, exchange schema.Exchange) (string, error) {
	var brsymbol string
	err := s.pool.QueryRow(ctx,
		`SELECT brsymbol FROM symtokens WHERE symbol = $1 AND exchange = $2 LIMIT 1`,
		normalize(symbol), string(exchange)).Scan(&brsymbol)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("brsymbol", symbol, exchange)
	}
	if err != nil {
		return "", fmt.Errorf("query brsymbol: %w", err)
	}
	return brsymbol, nil
}

// GetOASymbol resolves the canonical symbol for a broker (brsymbol, exchange).
func (s *PostgresStore) GetOASymbol(ctx context.Context, brsymbol string, exchange schema.Exchange) (string, error) {
	var symbol string
	err := s.pool.QueryRow(ctx,
		`SELECT symbol FROM symtokens WHERE UPPER(brsymbol) = $1 AND exchange = $2 LIMIT 1`,
		normalize(brsymbol), string(exchange)).Scan(&symbol)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("oasymbol", brsymbol, exchange)
	}
	if err != nil {
		return "", fmt.Errorf("query oasymbol: %w", err)
	}
	return symbol, nil
}

// Count reports the number of rows currently held for the broker.
func (s *PostgresStore) Count(ctx context.Context, broker string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM symtokens WHERE broker = $1`, normalize(broker)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count symbol rows: %w", err)
	}
	return count, nil
}
