package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
)

// SnapshotRepo буфер снимков в SQLite. Каждый метод выполняет ровно один
// оператор в режиме autocommit, поэтому падение процесса не оставляет
// частично вставленных или частично удалённых строк.
type SnapshotRepo struct {
	db *sql.DB
}

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (s *SnapshotRepo) Append(ctx context.Context, capturedAt string, payload string) (int64, error) {
	const query = `INSERT INTO snapshots (captured_at, payload) VALUES (?, ?)`

	res, err := s.db.ExecContext(ctx, query, capturedAt, payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return id, nil
}

func (s *SnapshotRepo) ReadAll(ctx context.Context) ([]domain.Snapshot, error) {
	const query = `SELECT id, captured_at, payload FROM snapshots ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query)
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

func (s *SnapshotRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrBuffer, e.Wrap(whereami.WhereAmI(), err))
	}

	return n, nil
}
