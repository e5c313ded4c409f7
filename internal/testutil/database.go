package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = MEMORY", // Faster for tests
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("Failed to set pragma: %v", err)
		}
	}

	// Create schema
	if err := createTestSchema(db); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestSchema creates all database tables for testing.
// Schema is synchronized with the embedded production migrations.
//
//nolint:funlen // Database schema DDL
func createTestSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE portfolio (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			base_currency TEXT NOT NULL DEFAULT 'EUR',
			is_archived INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE broker_connection (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL REFERENCES portfolio (id),
			broker TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'connected',
			sync_frequency TEXT NOT NULL DEFAULT 'daily',
			last_sync_time TIMESTAMP,
			last_error TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			sealed_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE staged_record (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL REFERENCES broker_connection (id),
			kind TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			isin TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			quantity TEXT NOT NULL DEFAULT '0',
			average_cost TEXT NOT NULL DEFAULT '0',
			price TEXT
		);

		CREATE TABLE staged_transaction (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL REFERENCES staged_record (id),
			type TEXT NOT NULL,
			date TIMESTAMP NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			fees TEXT NOT NULL DEFAULT '0'
		);

		CREATE TABLE position (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL REFERENCES portfolio (id),
			connection_id TEXT NOT NULL REFERENCES broker_connection (id),
			instrument_key TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			isin TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL DEFAULT '',
			broker TEXT NOT NULL,
			account_number TEXT NOT NULL DEFAULT '',
			quantity TEXT NOT NULL,
			average_cost TEXT NOT NULL,
			currency TEXT NOT NULL,
			current_price TEXT,
			last_updated TIMESTAMP NOT NULL,
			source_sync_time TIMESTAMP NOT NULL
		);

		CREATE TABLE duplicate_candidate (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL REFERENCES portfolio (id),
			instrument_key TEXT NOT NULL,
			position_ids TEXT NOT NULL,
			canonical_position_id TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL,
			match_reason TEXT NOT NULL,
			resolution_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE resolution (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL REFERENCES portfolio (id),
			candidate_id TEXT NOT NULL,
			instrument_key TEXT NOT NULL,
			position_ids TEXT NOT NULL,
			decision TEXT NOT NULL,
			canonical_position_id TEXT NOT NULL DEFAULT '',
			decided_at TIMESTAMP NOT NULL
		);

		CREATE TABLE snapshot (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL REFERENCES portfolio (id),
			as_of TIMESTAMP NOT NULL,
			base_currency TEXT NOT NULL,
			total_value TEXT NOT NULL,
			total_cost TEXT NOT NULL,
			total_unrealized_pnl TEXT NOT NULL,
			has_degraded_conversions INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE snapshot_holding (
			snapshot_id TEXT NOT NULL REFERENCES snapshot (id),
			instrument_key TEXT NOT NULL,
			total_quantity TEXT NOT NULL,
			total_cost TEXT NOT NULL,
			market_value TEXT NOT NULL,
			unrealized_pnl TEXT NOT NULL,
			unrealized_pnl_percent TEXT NOT NULL,
			price_stale INTEGER NOT NULL DEFAULT 0,
			degraded_conversion INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (snapshot_id, instrument_key)
		);

		CREATE TABLE snapshot_contributor (
			snapshot_id TEXT NOT NULL REFERENCES snapshot (id),
			instrument_key TEXT NOT NULL,
			position_id TEXT NOT NULL,
			source_account_id TEXT NOT NULL,
			broker TEXT NOT NULL,
			quantity TEXT NOT NULL,
			excluded_duplicate INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (snapshot_id, instrument_key, position_id)
		);

		CREATE TABLE snapshot_issue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id TEXT NOT NULL REFERENCES snapshot (id),
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			detail TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// CleanDatabase truncates all tables in dependency order.
// Useful for reusing the same database across multiple tests.
func CleanDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	// Order matters: delete children before parents due to foreign keys
	tables := []string{
		"snapshot_issue",
		"snapshot_contributor",
		"snapshot_holding",
		"snapshot",
		"resolution",
		"duplicate_candidate",
		"position",
		"staged_transaction",
		"staged_record",
		"broker_connection",
		"portfolio",
	}

	for _, table := range tables {
		//nolint:gosec // G202: Table names are from hardcoded slice, no SQL injection risk
		query := "DELETE FROM " + table
		if _, err := db.Exec(query); err != nil {
			t.Fatalf("Failed to clean table %s: %v", table, err)
		}
	}
}

// CountRows returns the number of rows in a table.
// Useful for assertions in tests.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	query := "SELECT COUNT(*) FROM " + table
	err := db.QueryRow(query).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}

	return count
}

// AssertRowCount asserts that a table has the expected number of rows.
//
// Example usage:
//
//	testutil.AssertRowCount(t, db, "portfolio", 2)
func AssertRowCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()

	actual := CountRows(t, db, table)
	if actual != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, actual)
	}
}
