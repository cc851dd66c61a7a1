// Package sqlite implements the product cache on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	// Registers the pure-Go "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	lender_name       TEXT NOT NULL,
	category          TEXT NOT NULL,
	country           TEXT NOT NULL,
	min_amount        REAL NOT NULL DEFAULT 0,
	max_amount        REAL NOT NULL DEFAULT 0,
	interest_rate_min REAL,
	interest_rate_max REAL,
	term_min          INTEGER,
	term_max          INTEGER,
	description       TEXT NOT NULL DEFAULT '',
	video_url         TEXT NOT NULL DEFAULT '',
	last_synced       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products (category);
CREATE TABLE IF NOT EXISTS sync_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const selectColumns = `id, name, lender_name, category, country, min_amount, max_amount,
	interest_rate_min, interest_rate_max, term_min, term_max, description, video_url, last_synced`

const insertProduct = `INSERT INTO products (` + selectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Store is a store.Store backed by database/sql and modernc.org/sqlite
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// dsn enables WAL and a busy timeout for file databases
func dsn(path string) string {
	if path == MemoryPath {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// New opens the database at path, creating its directory if needed
func New(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: stable
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// Init creates the tables
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ReplaceAll deletes every product and inserts the new generation in one
// transaction. A failing insert only rolls back its own statement.
func (s *Store) ReplaceAll(ctx context.Context, products []catalog.Product) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return 0, fmt.Errorf("failed to clear products: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertProduct)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted, err := store.InsertEach(ctx, products, func(p *catalog.Product) error {
		_, err := stmt.ExecContext(ctx,
			p.ID, p.Name, p.LenderName, string(p.Category), string(p.Country),
			p.MinAmount, p.MaxAmount, nullFloat(p.InterestRateMin), nullFloat(p.InterestRateMax),
			nullInt(p.TermMin), nullInt(p.TermMax), p.Description, p.VideoURL, p.LastSynced,
		)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*catalog.Product, error) {
	var p catalog.Product
	var category, country string
	var rateMin, rateMax sql.NullFloat64
	var termMin, termMax sql.NullInt64
	if err := row.Scan(
		&p.ID, &p.Name, &p.LenderName, &category, &country,
		&p.MinAmount, &p.MaxAmount, &rateMin, &rateMax,
		&termMin, &termMax, &p.Description, &p.VideoURL, &p.LastSynced,
	); err != nil {
		return nil, err
	}
	p.Category = catalog.Category(category)
	p.Country = catalog.Country(country)
	if rateMin.Valid {
		p.InterestRateMin = &rateMin.Float64
	}
	if rateMax.Valid {
		p.InterestRateMax = &rateMax.Float64
	}
	if termMin.Valid {
		v := int(termMin.Int64)
		p.TermMin = &v
	}
	if termMax.Valid {
		v := int(termMax.Int64)
		p.TermMax = &v
	}
	return &p, nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// GetAll returns every product ordered by id
func (s *Store) GetAll(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM products ORDER BY id")
	if err != nil {
		if isMissingTable(err) {
			return []catalog.Product{}, nil
		}
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}

// Get returns one product
func (s *Store) Get(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM products WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}

// Count returns the number of products
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// GetMetadata reads the singleton metadata row
func (s *Store) GetMetadata(ctx context.Context) (*status.SyncMetadata, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_metadata WHERE key = ?", status.MetadataKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return status.NewDefaultMetadata(), nil
		}
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}

	meta := status.NewDefaultMetadata()
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync metadata: %w", err)
	}
	return meta, nil
}

// PutMetadata upserts the singleton metadata row
func (s *Store) PutMetadata(ctx context.Context, meta *status.SyncMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal sync metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		status.MetadataKey, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write sync metadata: %w", err)
	}
	return nil
}

// Ping checks the database is open
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
