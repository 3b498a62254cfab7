package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/model"
)

// ErrNotFound is returned when an invoice ID does not exist.
var ErrNotFound = eris.New("store: invoice not found")

// ListFilter specifies criteria for listing invoices.
type ListFilter struct {
	Source model.TextSource `json:"source,omitempty"`
	Vendor string           `json:"vendor,omitempty"`
	Since  time.Time        `json:"since,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Stats aggregates stored invoices created since a point in time.
type Stats struct {
	Total      int                      `json:"total"`
	BySource   map[model.TextSource]int `json:"by_source"`
	AIEnhanced int                      `json:"ai_enhanced"`
}

// Store defines the persistence interface for processed invoices.
type Store interface {
	// SaveInvoice inserts inv, assigning its ID and timestamps when unset.
	SaveInvoice(ctx context.Context, inv *model.Invoice) error
	// UpdateRecord replaces the stored record of an existing invoice.
	UpdateRecord(ctx context.Context, id string, rec model.InvoiceRecord) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]model.Invoice, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store selected by cfg.Driver and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
