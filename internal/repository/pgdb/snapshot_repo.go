package pgdb

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// SnapshotRepo буфер снимков в PostgreSQL, альтернатива SQLite при BUFFER_DRIVER=postgres.
type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

func (s *SnapshotRepo) Append(ctx context.Context, capturedAt string, payload string) (int64, error) {
	query := `
		INSERT INTO snapshots (captured_at, payload)
		VALUES ($1, $2)
		RETURNING id;
	`

	var id int64
	if err := s.pool.QueryRow(ctx, query, capturedAt, payload).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return id, nil
}

func (s *SnapshotRepo) ReadAll(ctx context.Context) ([]domain.Snapshot, error) {
	query := `
		SELECT id, captured_at, payload
		FROM snapshots
		ORDER BY id ASC;
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}
	defer rows.Close()

	snapshots := make([]domain.Snapshot, 0)
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(&snap.ID, &snap.CapturedAt, &snap.Payload); err != nil {
			return nil, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return snapshots, nil
}

func (s *SnapshotRepo) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snapshots;`); err != nil {
		return fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

func (s *SnapshotRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM snapshots;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return n, nil
}
