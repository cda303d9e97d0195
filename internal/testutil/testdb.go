// Package testutil provides shared test infrastructure for integration tests.
// It uses testcontainers-go to spin up a real PostgreSQL instance, run
// all migrations, and provide a connection pool for test services.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/forgecommerce/invoicing/internal/database"
)

// TestDB holds a PostgreSQL test container and connection pool.
// It is designed to be shared across tests in a single package via
// TestMain. Each test should call Truncate() to reset state.
type TestDB struct {
	Pool      *pgxpool.Pool
	container testcontainers.Container
	connStr   string
}

// SetupTestDB starts a PostgreSQL container, runs all migrations, and
// returns a TestDB with an active connection pool.
//
// Usage in TestMain:
//
//	var testDB *testutil.TestDB
//
//	func TestMain(m *testing.M) {
//	    var code int
//	    defer func() { os.Exit(code) }()
//
//	    flag.Parse()
//	    if !testing.Short() {
//	        db, err := testutil.SetupTestDB()
//	        if err != nil { log.Fatal(err) }
//	        defer db.Close()
//	        testDB = db
//	    }
//
//	    code = m.Run()
//	}
func SetupTestDB() (*TestDB, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("invoicing_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := database.Migrate(connStr); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &TestDB{
		Pool:      pool,
		container: container,
		connStr:   connStr,
	}, nil
}

// ConnString returns the container's connection string.
func (tdb *TestDB) ConnString() string {
	return tdb.connStr
}

// Require skips the test when no database was started, which is the case
// under `go test -short`. It may be called on a nil TestDB.
func (tdb *TestDB) Require(t *testing.T) {
	t.Helper()
	if tdb == nil || tdb.Pool == nil {
		t.Skip("skipping integration test: no test database (short mode)")
	}
}

// Close terminates the container and closes the pool.
func (tdb *TestDB) Close() {
	if tdb.Pool != nil {
		tdb.Pool.Close()
	}
	if tdb.container != nil {
		tdb.container.Terminate(context.Background())
	}
}

// Truncate removes all data from application tables while preserving
// schema. Call this at the start of each test for isolation.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	// Children first.
	tables := []string{
		"supplier_prices",
		"accounting_entry_lines",
		"accounting_entries",
		"receipts",
		"document_lines",
		"documents",
		"products",
		"tax_zone_rules",
		"tax_rates",
		"partners",
		"partner_groups",
		"retentions",
		"tariffs",
		"warehouses",
		"companies",
		"vies_validation_cache",
	}

	ctx := context.Background()
	for _, table := range tables {
		_, err := tdb.Pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			slog.Debug("truncate skipped", "table", table, "error", err.Error())
		}
	}
}

// SeedEssentials inserts the tax-rate and retention catalog most tests
// need: IVA21, IVA10, IVA4, IVA0 and the IRPF15 retention.
func (tdb *TestDB) SeedEssentials(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := tdb.Pool.Exec(ctx, `
		INSERT INTO tax_rates (id, code, description, vat, surcharge, source)
		VALUES
			(gen_random_uuid(), 'IVA21', 'General',       21, 5.2, 'seed'),
			(gen_random_uuid(), 'IVA10', 'Reducido',      10, 1.4, 'seed'),
			(gen_random_uuid(), 'IVA4',  'Superreducido',  4, 0.5, 'seed'),
			(gen_random_uuid(), 'IVA0',  'Exento',         0, 0,   'seed')
	`)
	if err != nil {
		t.Fatalf("seeding tax rates: %v", err)
	}

	_, err = tdb.Pool.Exec(ctx, `
		INSERT INTO retentions (code, percentage) VALUES ('IRPF15', 15)
		ON CONFLICT (code) DO NOTHING
	`)
	if err != nil {
		t.Fatalf("seeding retentions: %v", err)
	}
}
