package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/invoice-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	file_name      TEXT NOT NULL,
	source         TEXT NOT NULL,
	invoice_number TEXT,
	vendor         TEXT,
	total          TEXT,
	record         TEXT NOT NULL,
	raw_text       TEXT NOT NULL DEFAULT '',
	ai_enhanced    INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
CREATE INDEX IF NOT EXISTS idx_invoices_source ON invoices(source);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveInvoice(ctx context.Context, inv *model.Invoice) error {
	recJSON, err := prepareInsert(inv)
	if err != nil {
		return eris.Wrap(err, "sqlite: save invoice")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, file_name, source, invoice_number, vendor, total, record, raw_text, ai_enhanced, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.FileName, string(inv.Source),
		nullable(inv.Record.InvoiceNumber), nullable(inv.Record.Vendor), nullable(inv.Record.Total),
		string(recJSON), inv.RawText, inv.Record.IsAIEnhanced, inv.CreatedAt, inv.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert invoice")
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, id string, rec model.InvoiceRecord) error {
	recJSON, err := encodeRecord(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: update record")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET invoice_number = ?, vendor = ?, total = ?, record = ?, ai_enhanced = ?, updated_at = ? WHERE id = ?`,
		nullable(rec.InvoiceNumber), nullable(rec.Vendor), nullable(rec.Total),
		string(recJSON), rec.IsAIEnhanced, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update invoice %s", id)
	}
	return checkRowsAffected(res, id)
}

const sqliteSelect = `SELECT id, file_name, source, record, raw_text, created_at, updated_at FROM invoices`

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get invoice %s", id)
	}
	return inv, err
}

func (s *SQLiteStore) ListInvoices(ctx context.Context, filter ListFilter) ([]model.Invoice, error) {
	query := sqliteSelect + ` WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.Vendor != "" {
		query += ` AND vendor LIKE ?`
		args = append(args, "%"+filter.Vendor+"%")
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close() //nolint:errcheck

	invoices := []model.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, eris.Wrap(rows.Err(), "sqlite: list invoices iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*), COALESCE(SUM(ai_enhanced), 0) FROM invoices WHERE created_at >= ? GROUP BY source`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	defer rows.Close() //nolint:errcheck

	st := &Stats{BySource: make(map[model.TextSource]int)}
	for rows.Next() {
		var source string
		var count, enhanced int
		if err := rows.Scan(&source, &count, &enhanced); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats")
		}
		st.BySource[model.TextSource(source)] = count
		st.Total += count
		st.AIEnhanced += enhanced
	}
	return st, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "invoice %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInvoice(row scannable) (*model.Invoice, error) {
	var inv model.Invoice
	var source, recJSON string

	err := row.Scan(&inv.ID, &inv.FileName, &source, &recJSON, &inv.RawText, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan invoice")
	}
	inv.Source = model.TextSource(source)
	if err := decodeRecord([]byte(recJSON), &inv.Record); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan invoice")
	}
	return &inv, nil
}
