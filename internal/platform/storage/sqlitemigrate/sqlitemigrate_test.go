package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestApplyRunsMigrationsOnce(t *testing.T) {
	t.Parallel()

	sqlDB := openTempDB(t)
	migrationFS := fstest.MapFS{
		"0001_widgets.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);"),
		},
		"0002_rows.sql": &fstest.MapFile{
			Data: []byte("INSERT INTO widgets (id) VALUES (1);"),
		},
	}

	if err := Apply(sqlDB, migrationFS); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := Apply(sqlDB, migrationFS); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count widgets: %v", err)
	}
	if count != 1 {
		t.Fatalf("widget rows = %d, want 1 (migration reapplied)", count)
	}
}

func TestApplyToleratesExistingDDL(t *testing.T) {
	t.Parallel()

	sqlDB := openTempDB(t)
	if _, err := sqlDB.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY);"); err != nil {
		t.Fatalf("pre-create table: %v", err)
	}
	migrationFS := fstest.MapFS{
		"0001_widgets.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);"),
		},
	}
	if err := Apply(sqlDB, migrationFS); err != nil {
		t.Fatalf("apply over existing schema: %v", err)
	}
}

func TestApplyRequiresDB(t *testing.T) {
	t.Parallel()

	if err := Apply(nil, fstest.MapFS{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}
