package postgres

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// SetupTestDB opens a connection to the test database and resets the catalog
// tables. Tests are skipped when no database is reachable so the suite can
// run without local infrastructure.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	host := getEnv("TEST_DB_HOST", "localhost")
	port := getEnv("TEST_DB_PORT", "5432")
	user := getEnv("TEST_DB_USER", "ownerstats")
	password := getEnv("TEST_DB_PASSWORD", "ownerstats")
	dbname := getEnv("TEST_DB_NAME", "ownerstats_test")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("skipping: failed to open test database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: test database not reachable: %v", err)
	}

	createTestTables(t, db)
	truncateTestTables(t, db)

	return db
}

// CleanupTestDB truncates the catalog tables and closes the connection.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	truncateTestTables(t, db)
	if err := db.Close(); err != nil {
		t.Errorf("failed to close test database: %v", err)
	}
}

func createTestTables(t *testing.T, db *sql.DB) {
	t.Helper()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			ref        TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			namespace  TEXT NOT NULL DEFAULT 'default',
			name       TEXT NOT NULL,
			type       TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			source_ref TEXT NOT NULL REFERENCES entities (ref) ON DELETE CASCADE,
			relation   TEXT NOT NULL,
			target_ref TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (source_ref, relation, target_ref)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to create test tables: %v", err)
		}
	}
}

func truncateTestTables(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE relations, entities`); err != nil {
		t.Fatalf("failed to truncate test tables: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
