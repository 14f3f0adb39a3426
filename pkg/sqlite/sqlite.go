package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/DRSN-tech/metric-embedder/db/migrations"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// SQLiteDatabase файл SQLite, в котором живёт буфер снимков.
type SQLiteDatabase struct {
	DB   *sql.DB
	Path string
	dsn  string
}

// DSN строка подключения modernc.org/sqlite. WAL и synchronous=FULL дают
// атомарность каждой отдельной вставки и удаления при падении процесса.
func DSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		path,
	)
}

// Open открывает (или создаёт) файл базы по указанному пути.
func Open(ctx context.Context, path string) (*SQLiteDatabase, error) {
	const op = "SQLiteDatabase.Open"

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	dsn := DSN(path)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	// один писатель: SQLite всё равно сериализует запись
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, e.Wrap(op, err)
	}

	return &SQLiteDatabase{DB: db, Path: path, dsn: dsn}, nil
}

func (s *SQLiteDatabase) Ping(ctx context.Context) error {
	const op = "SQLiteDatabase.Ping"

	if err := s.DB.PingContext(ctx); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}

	return nil
}

// RunMigrations применяет встроенные миграции из db/migrations/sqlite.
func (s *SQLiteDatabase) RunMigrations(logger logger.Logger) error {
	const (
		op                 = "SQLiteDatabase.RunMigrations"
		sourceName         = "iofs"
		databaseDriverName = "sqlite"
	)

	sqlDb, err := sql.Open(driverName, s.dsn)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer sqlDb.Close()

	driver, err := migratesqlite.WithInstance(sqlDb, &migratesqlite.Config{})
	if err != nil {
		return e.Wrap(op, err)
	}

	src, err := iofs.New(migrations.FS, migrations.SQLiteDir)
	if err != nil {
		return e.Wrap(op, err)
	}

	m, err := migrate.NewWithInstance(sourceName, src, databaseDriverName, driver)
	if err != nil {
		return e.Wrap(op, err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return e.Wrap(op, err)
	}

	logger.Infof("sqlite migrations applied to %s", s.Path)
	return nil
}
