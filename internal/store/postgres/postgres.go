// Package postgres implements the product cache on Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boreal-financial/catalog-sync/database"
	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/status"
	"github.com/boreal-financial/catalog-sync/internal/store"
)

// undefinedTable is the SQLSTATE returned for queries against a missing table
const undefinedTable = "42P01"

const selectColumns = `id, name, lender_name, category, country, min_amount, max_amount,
	interest_rate_min, interest_rate_max, term_min, term_max, description, video_url, last_synced`

const insertProduct = `INSERT INTO products (` + selectColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// Store is a store.Store backed by a pgx connection pool
type Store struct {
	pool       *pgxpool.Pool
	connString string
}

var _ store.Store = (*Store)(nil)

// New opens a pool for connString
func New(ctx context.Context, connString string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{pool: pool, connString: connString}, nil
}

// NewWithPool wraps an existing pool. Init still needs the connection string
// to run migrations.
func NewWithPool(pool *pgxpool.Pool, connString string) *Store {
	return &Store{pool: pool, connString: connString}
}

// Init applies the embedded migrations
func (s *Store) Init(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	if err := database.MigrateUp(s.connString); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// ReplaceAll deletes every product and inserts the new generation in one
// serializable transaction. Each insert runs inside a savepoint so a failing
// row does not abort the rest.
func (s *Store) ReplaceAll(ctx context.Context, products []catalog.Product) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, "DELETE FROM products"); err != nil {
		return 0, fmt.Errorf("failed to clear products: %w", err)
	}

	inserted, err := store.InsertEach(ctx, products, func(p *catalog.Product) error {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := sp.Exec(ctx, insertProduct,
			p.ID, p.Name, p.LenderName, string(p.Category), string(p.Country),
			p.MinAmount, p.MaxAmount, p.InterestRateMin, p.InterestRateMax,
			p.TermMin, p.TermMax, p.Description, p.VideoURL, p.LastSynced,
		); err != nil {
			_ = sp.Rollback(ctx)
			return err
		}
		return sp.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var p catalog.Product
	var category, country string
	if err := row.Scan(
		&p.ID, &p.Name, &p.LenderName, &category, &country,
		&p.MinAmount, &p.MaxAmount, &p.InterestRateMin, &p.InterestRateMax,
		&p.TermMin, &p.TermMax, &p.Description, &p.VideoURL, &p.LastSynced,
	); err != nil {
		return nil, err
	}
	p.Category = catalog.Category(category)
	p.Country = catalog.Country(country)
	return &p, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// GetAll returns every product ordered by id
func (s *Store) GetAll(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+" FROM products ORDER BY id")
	if err != nil {
		if isUndefinedTable(err) {
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
		if isUndefinedTable(err) {
			return []catalog.Product{}, nil
		}
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}

// Get returns one product
func (s *Store) Get(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}

// Count returns the number of products
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// GetMetadata reads the singleton metadata row
func (s *Store) GetMetadata(ctx context.Context) (*status.SyncMetadata, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, "SELECT value FROM sync_metadata WHERE key = $1", status.MetadataKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return status.NewDefaultMetadata(), nil
		}
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}

	meta := status.NewDefaultMetadata()
	if err := json.Unmarshal(raw, meta); err != nil {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_metadata (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		status.MetadataKey, raw)
	if err != nil {
		return fmt.Errorf("failed to write sync metadata: %w", err)
	}
	return nil
}

// Ping checks the pool can reach the server
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
