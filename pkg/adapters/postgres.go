package adapters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/HatiCode/plugcast/pkg/series"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}(\.[a-zA-Z_][a-zA-Z0-9_]{0,62})?$`)

// occupancyRow is one record of the occupancy table.
type occupancyRow struct {
	TS       time.Time `db:"ts"`
	Occupied int       `db:"occupied"`
}

// PostgresAdapter reads occupancy history from a table shaped like
//
//	CREATE TABLE occupancy (
//	    resource TEXT        NOT NULL,
//	    ts       TIMESTAMP   NOT NULL,
//	    occupied SMALLINT    NOT NULL
//	);
//
// Column names are fixed; the table name is configurable.
type PostgresAdapter struct {
	DB       *sqlx.DB
	Table    string
	Resource string
}

// NewPostgresAdapter opens a connection pool for dsn and verifies it.
func NewPostgresAdapter(ctx context.Context, dsn, table, resource string) (*PostgresAdapter, error) {
	if dsn == "" {
		return nil, errors.New("postgres adapter: dsn is required")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresAdapter{DB: db, Table: table, Resource: resource}, nil
}

func (p *PostgresAdapter) Name() string { return "postgres" }

// Collect implements Adapter. A non-zero window is applied against the wall
// clock, since the table is expected to be fed continuously.
func (p *PostgresAdapter) Collect(ctx context.Context, window time.Duration) ([]series.Observation, error) {
	query, args, err := p.buildQuery(window, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var rows []occupancyRow
	if err := p.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query occupancy history: %w", err)
	}

	obs := make([]series.Observation, 0, len(rows))
	for _, r := range rows {
		if r.Occupied != 0 && r.Occupied != 1 {
			return nil, &series.MalformedInputError{
				Field:  "occupied",
				Value:  fmt.Sprintf("%d", r.Occupied),
				Reason: fmt.Sprintf("row at %s: must be 0 or 1", r.TS.Format(series.TimestampLayout)),
			}
		}
		obs = append(obs, series.Observation{Timestamp: r.TS, Label: r.Occupied})
	}

	return obs, nil
}

func (p *PostgresAdapter) buildQuery(window time.Duration, now time.Time) (string, []any, error) {
	if p.Resource == "" {
		return "", nil, errors.New("postgres adapter: resource is required")
	}

	table := p.Table
	if table == "" {
		table = "occupancy"
	}
	if !identifierRegex.MatchString(table) {
		return "", nil, fmt.Errorf("postgres adapter: invalid table name %q", table)
	}

	query := fmt.Sprintf(`SELECT ts, occupied FROM %s WHERE resource = $1`, table)
	args := []any{p.Resource}
	if window > 0 {
		query += ` AND ts >= $2`
		args = append(args, now.Add(-window))
	}
	query += ` ORDER BY ts`

	return query, args, nil
}

// Close closes the connection pool.
func (p *PostgresAdapter) Close() error {
	if p.DB == nil {
		return nil
	}
	return p.DB.Close()
}
