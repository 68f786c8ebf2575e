package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"itemsvc/internal/item"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id          UUID PRIMARY KEY,
		name        VARCHAR(100) NOT NULL,
		description VARCHAR(500) NOT NULL,
		status      TEXT NOT NULL DEFAULT 'active',
		priority    SMALLINT NOT NULL DEFAULT 1,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS items_status_idx ON items (status)`,
	`CREATE INDEX IF NOT EXISTS items_created_at_idx ON items (created_at)`,
}

// sortColumns maps sortable JSON fields to columns. Only these values are
// ever interpolated into ORDER BY.
var sortColumns = map[string]string{
	item.SortCreatedAt: "created_at",
	item.SortUpdatedAt: "updated_at",
	item.SortName:      "name",
	item.SortPriority:  "priority",
	item.SortStatus:    "status",
}

var listTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

const itemColumns = `id, name, description, status, priority, created_at, updated_at`

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Postgres persists items in a PostgreSQL table.
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("database dsn not configured")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the items table and its indexes.
func (s *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, q item.Query) ([]item.Item, int, error) {
	q = q.Normalize()

	dir := "DESC"
	if q.Order == item.OrderAsc {
		dir = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM items WHERE ($1 = '' OR status = $1)
		ORDER BY %s %s, created_at %s, id %s LIMIT $2 OFFSET $3`,
		itemColumns, sortColumns[q.SortBy], dir, dir, dir)

	var total int
	items := []item.Item{}
	// count and page read the same snapshot
	err := s.inTx(ctx, listTxOptions, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &total,
			`SELECT count(*) FROM items WHERE ($1 = '' OR status = $1)`, string(q.Status)); err != nil {
			return fmt.Errorf("count items: %w", err)
		}
		if q.Offset() >= total {
			return nil
		}
		if err := tx.SelectContext(ctx, &items, query, string(q.Status), q.Limit, q.Offset()); err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i] = normalizeTimes(items[i])
	}
	return items, total, nil
}

func (s *Postgres) Get(ctx context.Context, id string) (item.Item, error) {
	if !item.ValidID(id) {
		return item.Item{}, item.ErrNotFound
	}
	return s.get(ctx, s.db, id, false)
}

func (s *Postgres) Create(ctx context.Context, f item.Fields) (item.Item, error) {
	it, err := item.New(f, item.Now())
	if err != nil {
		return item.Item{}, err
	}
	if err := insert(ctx, s.db, it); err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Postgres) Update(ctx context.Context, id string, f item.Fields) (item.Item, error) {
	if !item.ValidID(id) {
		return item.Item{}, item.ErrNotFound
	}

	var updated item.Item
	err := s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		existing, err := s.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated, err = existing.Apply(f, item.Now())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE items
			SET name = $2, description = $3, status = $4, priority = $5, updated_at = $6
			WHERE id = $1
		`, updated.ID, updated.Name, updated.Description, string(updated.Status), updated.Priority, updated.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return nil
	})
	if err != nil {
		return item.Item{}, err
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) (bool, error) {
	if !item.ValidID(id) {
		return false, nil
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Postgres) BulkCreate(ctx context.Context, fs []item.Fields) ([]item.Item, error) {
	items, err := item.NewBatch(fs, item.Now())
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		for _, it := range items {
			if err := insert(ctx, tx, it); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	var one int
	if err := s.db.GetContext(ctx, &one, `SELECT 1`); err != nil {
		return fmt.Errorf("%w: %v", item.ErrUnavailable, err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) get(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var it item.Item
	if err := sqlx.GetContext(ctx, q, &it, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item.Item{}, item.ErrNotFound
		}
		return item.Item{}, fmt.Errorf("get item: %w", err)
	}
	return normalizeTimes(it), nil
}

func (s *Postgres) inTx(ctx context.Context, opts *sql.TxOptions, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insert(ctx context.Context, db sqlx.ExecerContext, it item.Item) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, it.ID, it.Name, it.Description, string(it.Status), it.Priority, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// normalizeTimes drops the session time zone lib/pq attaches to timestamptz.
func normalizeTimes(it item.Item) item.Item {
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it
}
