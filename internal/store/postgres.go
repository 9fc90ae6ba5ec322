package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dpup/prefab/logging"
	_ "github.com/lib/pq"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

const schema = `
CREATE TABLE IF NOT EXISTS hazards (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	reported_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS hazards_expires_at_idx ON hazards (expires_at);
`

// PostgresStore persists hazards in a table; expired rows are filtered on
// read and removed by DeleteExpired
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// OpenPostgresStore connects to postgres and optionally creates the schema
func OpenPostgresStore(ctx context.Context, cfg config.PostgresConfig, retention time.Duration, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := NewPostgresStore(db, retention, opts...)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logging.Infow(ctx, "Connected to Postgres hazard store", "auto_migrate", cfg.AutoMigrate)
	return s, nil
}

// NewPostgresStore wraps an existing database handle
func NewPostgresStore(db *sql.DB, retention time.Duration, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{
		db:        db,
		retention: retention,
		now:       o.now,
	}
}

// Migrate creates the hazards table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Create validates and stores a hazard report
func (s *PostgresStore) Create(ctx context.Context, report hazard.Report) (hazard.Hazard, error) {
	h, err := prepare(report, s.now())
	if err != nil {
		return hazard.Hazard{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO hazards (id, type, latitude, longitude, location, reported_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.Type, *h.Latitude, *h.Longitude, h.Location, h.Timestamp, h.ExpiresAt(s.retention),
	)
	if err != nil {
		return hazard.Hazard{}, fmt.Errorf("failed to insert hazard: %w", err)
	}

	logging.Debugw(ctx, "Hazard stored", "id", h.ID, "type", h.Type, "driver", "postgres")
	return h, nil
}

// List returns unexpired hazards in report order
func (s *PostgresStore) List(ctx context.Context) ([]hazard.Hazard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, latitude, longitude, location, reported_at
		 FROM hazards WHERE expires_at > $1 ORDER BY reported_at, id`,
		s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query hazards: %w", err)
	}
	defer rows.Close()

	hazards := []hazard.Hazard{}
	for rows.Next() {
		var h hazard.Hazard
		var lat, lon float64
		if err := rows.Scan(&h.ID, &h.Type, &lat, &lon, &h.Location, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan hazard: %w", err)
		}
		h.Latitude, h.Longitude = &lat, &lon
		h.Timestamp = h.Timestamp.UTC()
		hazards = append(hazards, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hazards: %w", err)
	}

	return hazards, nil
}

// DeleteExpired removes rows whose retention has elapsed
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hazards WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired hazards: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
