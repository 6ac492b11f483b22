package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/domain"
)

// ArchiveDB is the optional durable archive: every accepted position
// report and every captured pre-shutdown snapshot, written to Postgres.
// The live pipeline never reads from it.
type ArchiveDB struct {
	pool *pgxpool.Pool
}

func NewArchiveDB(ctx context.Context, cfg *config.Config) (*ArchiveDB, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	db := &ArchiveDB{pool: pool}
	if err := db.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (s *ArchiveDB) Close() {
	s.pool.Close()
}

func (s *ArchiveDB) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *ArchiveDB) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS asset_positions (
			timestamp    TIMESTAMPTZ      NOT NULL,
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			asset_id     TEXT             NOT NULL,
			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,
			raw_payload  JSONB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_asset_time
			ON asset_positions (asset_id, timestamp DESC);`,
		`CREATE TABLE IF NOT EXISTS asset_snapshots (
			id           BIGSERIAL   PRIMARY KEY,
			asset_id     TEXT        NOT NULL,
			captured_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			path         JSONB       NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_asset_time
			ON asset_snapshots (asset_id, captured_at DESC);`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	return nil
}

var positionColumns = []string{
	"timestamp",
	"received_at",
	"asset_id",
	"latitude",
	"longitude",
	"raw_payload",
}

// BatchInsert writes a batch of accepted reports with a single COPY.
func (s *ArchiveDB) BatchInsert(ctx context.Context, reports []*domain.Report) error {
	if len(reports) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(reports))
	for i, rep := range reports {
		rows[i] = []interface{}{
			rep.Position.Time(),
			rep.ReceivedAt,
			rep.AssetID,
			rep.Position.Latitude,
			rep.Position.Longitude,
			string(rep.RawPayload),
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"asset_positions"},
		positionColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(reports), err)
	}

	return nil
}

// InsertSnapshot records one captured snapshot.
func (s *ArchiveDB) InsertSnapshot(ctx context.Context, snap domain.Snapshot, pathJSON []byte) error {
	query := `
		INSERT INTO asset_snapshots (asset_id, captured_at, path)
		VALUES ($1, to_timestamp($2::double precision / 1000), $3)
	`
	_, err := s.pool.Exec(ctx, query, snap.AssetID, snap.CapturedAt, string(pathJSON))
	return err
}
