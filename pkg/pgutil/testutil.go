package pgutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/config"
)

const (
	testImage    = "postgres:15-alpine"
	testDatabase = "mintwatch_test"
	testUser     = "mintwatch"
	testPassword = "mintwatch"
)

// SetupTestDB runs a throwaway postgres container for one test and returns
// a connected bun handle. The container is removed when the test ends; the
// returned func only closes the handle. Skips when docker is unavailable.
func SetupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx, testImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "postgres container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     testUser,
		Password: testPassword,
		Database: testDatabase,
		SSLMode:  "disable",
	}

	// the server may restart once after init before it accepts clients
	var db *bun.DB
	require.Eventually(t, func() bool {
		conn, err := ConnectDB(ctx, cfg, zap.NewNop())
		if err != nil {
			return false
		}
		db = conn
		return true
	}, 30*time.Second, 250*time.Millisecond, "connect to %s:%d", host, port.Int())

	return db, func() { _ = db.Close() }
}

func queryBool(t *testing.T, db *bun.DB, expr string, args ...any) bool {
	t.Helper()
	var ok bool
	require.NoError(t, db.NewSelect().ColumnExpr(expr, args...).Scan(context.Background(), &ok), expr)
	return ok
}

func tableExists(t *testing.T, db *bun.DB, table string) bool {
	t.Helper()
	return queryBool(t, db,
		"EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?)", table)
}

// AssertTableExists fails the test unless the table is in the current schema.
func AssertTableExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	require.Truef(t, tableExists(t, db, table), "table %s missing", table)
}

// AssertTableNotExists is the inverse of AssertTableExists.
func AssertTableNotExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	require.Falsef(t, tableExists(t, db, table), "table %s still present", table)
}

// AssertIndexExists fails the test unless the named index is present.
func AssertIndexExists(t *testing.T, db *bun.DB, index string) {
	t.Helper()
	ok := queryBool(t, db,
		"EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = current_schema() AND indexname = ?)", index)
	require.Truef(t, ok, "index %s missing", index)
}

func AssertRowCount(t *testing.T, db *bun.DB, table string, want int) {
	t.Helper()
	n, err := db.NewSelect().TableExpr("?", bun.Ident(table)).Count(context.Background())
	require.NoError(t, err, table)
	require.Equalf(t, want, n, "rows in %s", table)
}
