package selector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var _ job.Selector = (*SQL)(nil)

// Supported drivers for Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultPingTimeout bounds the connectivity check in Open.
const DefaultPingTimeout = 5 * time.Second

// Open connects to a selection database and verifies it with a ping.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported selector driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// SQL selects IDs with a single-column query. The query should carry an
// ORDER BY so repeated runs see the same order.
type SQL struct {
	db    *sqlx.DB
	query string
	args  []any
}

// NewSQL creates a SQL selector. Placeholders in query use "?" and are
// rebound to the driver's bindvar style.
func NewSQL(db *sqlx.DB, query string, args ...any) *SQL {
	return &SQL{db: db, query: db.Rebind(query), args: args}
}

// Select implements job.Selector. NULL IDs are rejected.
func (s *SQL) Select(ctx context.Context) ([]repo.DocID, error) {
	var raw []sql.NullString
	if err := s.db.SelectContext(ctx, &raw, s.query, s.args...); err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}

	ids := make([]repo.DocID, 0, len(raw))
	for i, r := range raw {
		if !r.Valid || r.String == "" {
			return nil, fmt.Errorf("select ids: row %d has an empty id", i+1)
		}
		ids = append(ids, repo.DocID(r.String))
	}
	return ids, nil
}
