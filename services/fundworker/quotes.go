package fundworker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

const defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL"

const quoteSchema = `
CREATE TABLE IF NOT EXISTS price_quotes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asset TEXT NOT NULL,
    symbol TEXT NOT NULL,
    source TEXT NOT NULL,
    quote TEXT NOT NULL,
    wei TEXT NOT NULL,
    tx_ref TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_quotes_asset ON price_quotes(asset, id);
`

// ErrQuoteNotFound is returned when no quote was recorded for an asset.
var ErrQuoteNotFound = errors.New("quote not found")

// Quote is one price observation of the price pusher.
type Quote struct {
	Asset      string
	Symbol     string
	Source     string
	Quote      string
	Wei        string
	TxRef      string
	Error      string
	ObservedAt time.Time
}

// QuoteStore keeps the history of pushed prices in SQLite.
type QuoteStore struct {
	db *sql.DB
}

// QuoteFileDSN converts a filesystem path into an on-disk SQLite DSN.
func QuoteFileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("quote store path must be configured")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve quote store path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// OpenQuoteStore opens the store using a sqlite-compatible DSN.
func OpenQuoteStore(dsn string) (*QuoteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open quote store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(quoteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &QuoteStore{db: db}, nil
}

// Close releases database resources.
func (s *QuoteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record persists q.
func (s *QuoteStore) Record(ctx context.Context, q Quote) error {
	if s == nil {
		return nil
	}
	observed := q.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO price_quotes(asset, symbol, source, quote, wei, tx_ref, error, observed_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
    `, strings.ToLower(q.Asset), q.Symbol, q.Source, q.Quote, q.Wei, q.TxRef, q.Error, observed.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// Latest returns the most recent quote recorded for asset.
func (s *QuoteStore) Latest(ctx context.Context, asset string) (Quote, error) {
	var (
		q        Quote
		observed int64
	)
	if s == nil {
		return q, fmt.Errorf("quote store not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT asset, symbol, source, quote, wei, tx_ref, error, observed_at
        FROM price_quotes
        WHERE asset = ?
        ORDER BY id DESC
        LIMIT 1
    `, strings.ToLower(asset))
	if err := row.Scan(&q.Asset, &q.Symbol, &q.Source, &q.Quote, &q.Wei, &q.TxRef, &q.Error, &observed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return q, ErrQuoteNotFound
		}
		return q, fmt.Errorf("query quote: %w", err)
	}
	q.ObservedAt = time.Unix(observed, 0).UTC()
	return q, nil
}

// Recent returns up to limit quotes, newest first.
func (s *QuoteStore) Recent(ctx context.Context, limit int) ([]Quote, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT asset, symbol, source, quote, wei, tx_ref, error, observed_at
        FROM price_quotes
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()
	out := make([]Quote, 0)
	for rows.Next() {
		var (
			q        Quote
			observed int64
		)
		if err := rows.Scan(&q.Asset, &q.Symbol, &q.Source, &q.Quote, &q.Wei, &q.TxRef, &q.Error, &observed); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q.ObservedAt = time.Unix(observed, 0).UTC()
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return out, nil
}
