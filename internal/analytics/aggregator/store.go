// Package aggregator persists periodic latency snapshots to PostgreSQL so
// operators can compare runs after the in-memory window is gone.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/resilience"
)

const schema = `CREATE TABLE IF NOT EXISTS latency_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    instance    TEXT NOT NULL,
    p95_ms      DOUBLE PRECISION NOT NULL,
    samples     INTEGER NOT NULL,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DB is satisfied by *sql.DB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SnapshotSource is satisfied by *analytics.Recorder.
type SnapshotSource interface {
	Snapshot() analytics.Snapshot
}

type Store struct {
	db           DB
	instance     string
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewStore tags every row with instance so several servers can share a table.
func NewStore(db DB, instance string) *Store {
	return &Store{
		db:           db,
		instance:     instance,
		writeTimeout: 5 * time.Second,
		logger:       logger.WithComponent("snapshot-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating latency_snapshots: %w", err)
	}
	return nil
}

// SaveSnapshot writes snap, giving up after the store's write timeout.
func (s *Store) SaveSnapshot(ctx context.Context, snap analytics.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	err = resilience.WithTimeout(ctx, s.writeTimeout, "save-snapshot", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO latency_snapshots (instance, p95_ms, samples, data, captured_at) VALUES ($1, $2, $3, $4, $5)`,
			s.instance, snap.Window.P95Ms, snap.Window.Samples, data, snap.CapturedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving latency snapshot: %w", err)
	}
	s.logger.Debug("latency snapshot saved",
		"requests", snap.Requests,
		"p95_ms", snap.Window.P95Ms,
	)
	return nil
}

// LatestSnapshot loads this instance's most recent snapshot, or nil when
// there is none.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM latency_snapshots WHERE instance = $1 ORDER BY captured_at DESC LIMIT 1`,
		s.instance,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var snap analytics.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}

// StartPeriodicSave snapshots src every interval until ctx is done, then
// writes one final snapshot. The returned channel closes when it has.
func (s *Store) StartPeriodicSave(ctx context.Context, src SnapshotSource, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, src.Snapshot()); err != nil {
					s.logger.Warn("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				if err := s.SaveSnapshot(context.Background(), src.Snapshot()); err != nil {
					s.logger.Warn("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
	return done
}
