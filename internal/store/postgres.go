package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// pgQueries holds the fixed statements shared by the store methods.
var pgQueries = map[string]string{
	"insert_invoice": `INSERT INTO invoices (id, file_name, source, invoice_number, vendor, total, record, raw_text, ai_enhanced, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"update_record":  `UPDATE invoices SET invoice_number = $1, vendor = $2, total = $3, record = $4, ai_enhanced = $5, updated_at = $6 WHERE id = $7`,
	"get_invoice":    `SELECT id, file_name, source, record, raw_text, created_at, updated_at FROM invoices WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_name      TEXT NOT NULL,
	source         TEXT NOT NULL,
	invoice_number TEXT,
	vendor         TEXT,
	total          TEXT,
	record         JSONB NOT NULL,
	raw_text       TEXT NOT NULL DEFAULT '',
	ai_enhanced    BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
CREATE INDEX IF NOT EXISTS idx_invoices_source ON invoices(source);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, inv *model.Invoice) error {
	recJSON, err := prepareInsert(inv)
	if err != nil {
		return eris.Wrap(err, "postgres: save invoice")
	}
	_, err = s.pool.Exec(ctx, pgQueries["insert_invoice"],
		inv.ID, inv.FileName, string(inv.Source),
		nullable(inv.Record.InvoiceNumber), nullable(inv.Record.Vendor), nullable(inv.Record.Total),
		recJSON, inv.RawText, inv.Record.IsAIEnhanced, inv.CreatedAt, inv.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert invoice")
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, id string, rec model.InvoiceRecord) error {
	recJSON, err := encodeRecord(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: update record")
	}
	tag, err := s.pool.Exec(ctx, pgQueries["update_record"],
		nullable(rec.InvoiceNumber), nullable(rec.Vendor), nullable(rec.Total),
		recJSON, rec.IsAIEnhanced, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update invoice %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update invoice %s", id)
	}
	return nil
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	inv, err := scanPgInvoice(s.pool.QueryRow(ctx, pgQueries["get_invoice"], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get invoice %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get invoice %s", id)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvoices(ctx context.Context, filter ListFilter) ([]model.Invoice, error) {
	query := `SELECT id, file_name, source, record, raw_text, created_at, updated_at FROM invoices WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	if filter.Vendor != "" {
		query += fmt.Sprintf(` AND vendor ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Vendor+"%")
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invoices")
	}
	defer rows.Close()

	invoices := []model.Invoice{}
	for rows.Next() {
		inv, err := scanPgInvoice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list invoices")
		}
		invoices = append(invoices, *inv)
	}
	return invoices, eris.Wrap(rows.Err(), "postgres: list invoices iterate")
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, COUNT(*), COUNT(*) FILTER (WHERE ai_enhanced) FROM invoices WHERE created_at >= $1 GROUP BY source`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	defer rows.Close()

	st := &Stats{BySource: make(map[model.TextSource]int)}
	for rows.Next() {
		var source string
		var count, enhanced int64
		if err := rows.Scan(&source, &count, &enhanced); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats")
		}
		st.BySource[model.TextSource(source)] = int(count)
		st.Total += int(count)
		st.AIEnhanced += int(enhanced)
	}
	return st, eris.Wrap(rows.Err(), "postgres: stats iterate")
}

func scanPgInvoice(row pgx.Row) (*model.Invoice, error) {
	var inv model.Invoice
	var source string
	var recJSON []byte

	if err := row.Scan(&inv.ID, &inv.FileName, &source, &recJSON, &inv.RawText, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.Source = model.TextSource(source)
	if err := decodeRecord(recJSON, &inv.Record); err != nil {
		return nil, err
	}
	return &inv, nil
}
