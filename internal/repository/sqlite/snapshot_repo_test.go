package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	pkgsqlite "github.com/DRSN-tech/metric-embedder/pkg/sqlite"
)

func openBuffer(t *testing.T, path string) (*pkgsqlite.SQLiteDatabase, *SnapshotRepo) {
	t.Helper()

	db, err := pkgsqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.RunMigrations(logger.NewNop()); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	return db, NewSnapshotRepo(db.DB)
}

func TestSnapshotRepoAppendReadClear(t *testing.T) {
	ctx := context.Background()
	db, repo := openBuffer(t, filepath.Join(t.TempDir(), "buf.sqlite"))
	defer db.Close()

	first, err := repo.Append(ctx, "2026-10-15T10:00:00", "up 1")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := repo.Append(ctx, "2026-10-15T10:01:00", "up 0")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second <= first {
		t.Fatalf("ids must grow: %d then %d", first, second)
	}

	rows, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != first || rows[1].ID != second {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[0].Payload != "up 1" || rows[0].CapturedAt != "2026-10-15T10:00:00" {
		t.Fatalf("row not stored verbatim: %+v", rows[0])
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := repo.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected empty buffer, got %d (%v)", n, err)
	}
}

func TestSnapshotRepoEmptyBuffer(t *testing.T) {
	ctx := context.Background()
	db, repo := openBuffer(t, filepath.Join(t.TempDir(), "buf.sqlite"))
	defer db.Close()

	rows, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", rows)
	}
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear on empty buffer must succeed: %v", err)
	}
}

func TestSnapshotRepoIDsNotReusedAfterClear(t *testing.T) {
	ctx := context.Background()
	db, repo := openBuffer(t, filepath.Join(t.TempDir(), "buf.sqlite"))
	defer db.Close()

	first, _ := repo.Append(ctx, "2026-10-15T10:00:00", "a")
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	next, err := repo.Append(ctx, "2026-10-15T10:01:00", "b")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if next <= first {
		t.Fatalf("id %d reused after clear (previous %d)", next, first)
	}
}

func TestSnapshotRepoSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "buf.sqlite")

	db, repo := openBuffer(t, path)
	if _, err := repo.Append(ctx, "2026-10-15T10:00:00", "a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	db.Close()

	db, repo = openBuffer(t, path)
	defer db.Close()

	rows, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0].Payload != "a" {
		t.Fatalf("snapshot lost across reopen: %+v", rows)
	}
}

func TestSnapshotRepoErrorsAreBufferErrors(t *testing.T) {
	db, repo := openBuffer(t, filepath.Join(t.TempDir(), "buf.sqlite"))
	db.Close()

	_, err := repo.Append(context.Background(), "2026-10-15T10:00:00", "a")
	if !errors.Is(err, e.ErrBuffer) {
		t.Fatalf("expected ErrBuffer, got %v", err)
	}
}
