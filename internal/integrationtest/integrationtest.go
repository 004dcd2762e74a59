// Package integrationtest provides config and db helpers used in integration tests.
package integrationtest

import (
	"database/sql"
	"testing"

	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

// ConfigPath is the configs directory as seen from a package two levels below the
// module root, e.g. internal/entryrepo.
const ConfigPath = "../../configs"

// Config loads the application config for an integration test.
func Config(t *testing.T) configpkg.Config {
	t.Helper()

	config, err := configpkg.Load(ConfigPath)
	if err != nil {
		t.Fatalf("configpkg.Load(%q) returned error: %v", ConfigPath, err)
	}

	return config
}

// Flush empties the ledger tables without dropping them.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	var tables string

	const query = `
	SELECT string_agg(table_name, ', ')
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name <> 'schema_migrations';`

	if err := db.QueryRow(query).Scan(&tables); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE TABLE ` + tables + " CASCADE"); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB connects to the test database and flushes it when the test ends.
func SetupDB(t *testing.T, driver, source string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() failed: %v", err)
		}
	})

	return db
}

// SetupTX begins a transaction that is rolled back when the test ends, so rows written
// through it never reach other tests.
func SetupTX(t *testing.T, driver, source string) *sql.Tx {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("db.Begin() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Fatalf("tx.Rollback() failed: %v", err)
		}

		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() failed: %v", err)
		}
	})

	return tx
}
