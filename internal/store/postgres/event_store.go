// Package postgres provides the Postgres-backed event store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfriedel/whatson/internal/event"
	"github.com/mfriedel/whatson/internal/pagination"
	"github.com/mfriedel/whatson/internal/store"
)

// uniqueViolation is the Postgres error code for a unique-index conflict,
// the store's duplicate-fingerprint signal.
const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// EventStore implements store.EventStore on Postgres.
type EventStore struct {
	pool pgxPool
}

var _ store.EventStore = (*EventStore)(nil)

// New creates a Postgres-backed EventStore using the provided config.
func New(ctx context.Context, cfg Config) (*EventStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &EventStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EventStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *EventStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const insertEventSQL = `
INSERT INTO events (
	start_date,
	end_date,
	title,
	description,
	schedule,
	extra,
	image,
	location,
	coordinate,
	fingerprint
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`

// BulkInsert inserts every record in its own autocommit statement so a
// duplicate fingerprint on one record cannot abort the rest (a pgx batch
// runs in an implicit transaction and would). Duplicate-key violations are
// counted, not returned; any other per-record failure is joined into the
// returned error.
func (s *EventStore) BulkInsert(ctx context.Context, records []event.Record) (store.BulkResult, error) {
	var result store.BulkResult
	var errs []error
	for _, rec := range records {
		if rec.Fingerprint == "" {
			errs = append(errs, fmt.Errorf("record %q: missing fingerprint", rec.Title))
			continue
		}
		extra, err := marshalNullable(rec.Extra, len(rec.Extra) > 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %q: %w", rec.Title, err))
			continue
		}
		image, err := marshalNullable(rec.Image, rec.Image != nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %q: %w", rec.Title, err))
			continue
		}
		coordinate, err := marshalNullable(rec.Coordinate, rec.Coordinate != nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %q: %w", rec.Title, err))
			continue
		}
		_, err = s.pool.Exec(ctx, insertEventSQL,
			rec.StartDate,
			rec.EndDate,
			rec.Title,
			rec.Description,
			rec.Schedule,
			extra,
			image,
			rec.Location,
			coordinate,
			rec.Fingerprint,
		)
		switch {
		case err == nil:
			result.Inserted++
		case isDuplicateKey(err):
			result.Duplicates++
		default:
			errs = append(errs, fmt.Errorf("insert event %q: %w", rec.Title, err))
		}
	}
	return result, errors.Join(errs...)
}

const listEventsSQL = `
SELECT id, start_date, end_date, title, description, schedule, extra, image, location, coordinate, fingerprint
FROM events
ORDER BY start_date DESC, id DESC
LIMIT $1`

// Keyset predicate: strictly after the cursor position in
// (start_date DESC, id DESC) order. The OR/tiebreak form is required so rows
// sharing the cursor's start date but with a smaller id are not skipped.
const listEventsAfterSQL = `
SELECT id, start_date, end_date, title, description, schedule, extra, image, location, coordinate, fingerprint
FROM events
WHERE start_date < $1 OR (start_date = $1 AND id < $2)
ORDER BY start_date DESC, id DESC
LIMIT $3`

// ListEvents returns one page in the fixed sort order.
func (s *EventStore) ListEvents(ctx context.Context, q pagination.Query) ([]event.Record, error) {
	var rows pgx.Rows
	var err error
	if q.Before == nil {
		rows, err = s.pool.Query(ctx, listEventsSQL, q.Limit)
	} else {
		rows, err = s.pool.Query(ctx, listEventsAfterSQL, q.Before.StartDate, q.Before.ID, q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var page []event.Record
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return page, nil
}

func scanEvent(rows pgx.Rows) (event.Record, error) {
	var rec event.Record
	var id uuid.UUID
	var extra, image, coordinate []byte
	err := rows.Scan(
		&id,
		&rec.StartDate,
		&rec.EndDate,
		&rec.Title,
		&rec.Description,
		&rec.Schedule,
		&extra,
		&image,
		&rec.Location,
		&coordinate,
		&rec.Fingerprint,
	)
	if err != nil {
		return event.Record{}, fmt.Errorf("scan event row: %w", err)
	}
	rec.ID = id
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return event.Record{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	if len(image) > 0 {
		rec.Image = &event.Image{}
		if err := json.Unmarshal(image, rec.Image); err != nil {
			return event.Record{}, fmt.Errorf("decode image: %w", err)
		}
	}
	if len(coordinate) > 0 {
		rec.Coordinate = &event.Coordinate{}
		if err := json.Unmarshal(coordinate, rec.Coordinate); err != nil {
			return event.Record{}, fmt.Errorf("decode coordinate: %w", err)
		}
	}
	return rec, nil
}

func marshalNullable(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal column: %w", err)
	}
	return data, nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
