package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lastmile/internal/model"
)

// Postgres persists committed routes in a single routes table. Stop
// lists travel as JSONB; the version column backs optimistic patches.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies connectivity.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the routes table if missing (dev helper).
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS routes (
    id               TEXT PRIMARY KEY,
    batch_id         TEXT NOT NULL,
    code             TEXT NOT NULL,
    stops            JSONB NOT NULL DEFAULT '[]',
    unassigned_stops JSONB NOT NULL DEFAULT '[]',
    distance_m       DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration_s       BIGINT NOT NULL DEFAULT 0,
    polyline         BYTEA,
    driver_id        TEXT,
    driver           JSONB,
    status           TEXT NOT NULL,
    version          INT NOT NULL DEFAULT 1,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS routes_batch_idx ON routes (batch_id);`)
	return err
}

func (p *Postgres) CreateRoute(ctx context.Context, r model.CommittedRoute) error {
	if r.Version == 0 {
		r.Version = 1
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO routes (id, batch_id, code, stops, unassigned_stops, distance_m, duration_s, polyline, driver_id, driver, status, version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.BatchID, r.Code, toJSON(r.Stops), toJSON(r.UnassignedStops),
		r.DistanceMeters, r.DurationSeconds, r.Polyline, nullIfEmpty(r.DriverID),
		toJSON(r.Driver), string(r.Status), r.Version)
	return err
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.CommittedRoute, error) {
	row := p.db.QueryRowContext(ctx, `
SELECT id, batch_id, code, stops, unassigned_stops, distance_m, duration_s, polyline, COALESCE(driver_id,''), driver, status, version
FROM routes WHERE id = $1`, id)
	return scanRoute(row)
}

func (p *Postgres) ListRoutesByBatch(ctx context.Context, batchID string) ([]model.CommittedRoute, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT id, batch_id, code, stops, unassigned_stops, distance_m, duration_s, polyline, COALESCE(driver_id,''), driver, status, version
FROM routes WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.CommittedRoute
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PatchRoute re-reads the current row and applies the patch under a
// version guard so concurrent external writers are never overwritten
// blindly.
func (p *Postgres) PatchRoute(ctx context.Context, id string, expectedVersion int, patch model.RoutePatch) (model.CommittedRoute, error) {
	current, err := p.GetRoute(ctx, id)
	if err != nil {
		return model.CommittedRoute{}, err
	}
	if current.Version != expectedVersion {
		return model.CommittedRoute{}, ErrConflict
	}
	applyPatch(&current, patch)
	current.Version++

	res, err := p.db.ExecContext(ctx, `
UPDATE routes SET stops=$1, unassigned_stops=$2, distance_m=$3, duration_s=$4, polyline=$5,
    driver_id=$6, driver=$7, status=$8, version=$9, updated_at=now()
WHERE id=$10 AND version=$11`,
		toJSON(current.Stops), toJSON(current.UnassignedStops), current.DistanceMeters,
		current.DurationSeconds, current.Polyline, nullIfEmpty(current.DriverID),
		toJSON(current.Driver), string(current.Status), current.Version, id, expectedVersion)
	if err != nil {
		return model.CommittedRoute{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.CommittedRoute{}, err
	}
	if n == 0 {
		return model.CommittedRoute{}, ErrConflict
	}
	return current, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (model.CommittedRoute, error) {
	var r model.CommittedRoute
	var stops, unassigned, driver []byte
	var status string
	err := row.Scan(&r.ID, &r.BatchID, &r.Code, &stops, &unassigned, &r.DistanceMeters,
		&r.DurationSeconds, &r.Polyline, &r.DriverID, &driver, &status, &r.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CommittedRoute{}, ErrNotFound
	}
	if err != nil {
		return model.CommittedRoute{}, err
	}
	r.Status = model.RouteStatus(status)
	if err := json.Unmarshal(stops, &r.Stops); err != nil {
		return model.CommittedRoute{}, fmt.Errorf("decode stops: %w", err)
	}
	if err := json.Unmarshal(unassigned, &r.UnassignedStops); err != nil {
		return model.CommittedRoute{}, fmt.Errorf("decode unassigned stops: %w", err)
	}
	if len(driver) > 0 {
		var d model.DriverInfo
		if err := json.Unmarshal(driver, &d); err == nil && d.ID != "" {
			r.Driver = &d
		}
	}
	return r, nil
}

func toJSON(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
