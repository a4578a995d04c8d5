package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcwait "github.com/testcontainers/testcontainers-go/wait"
)

// TestNewClientAppliesMigrations spins up a disposable Postgres container,
// opens a Client against it, and asserts the embedded migrations created the
// expected schemas. Skipped unless INTEGRATION_TESTS=1, matching the
// teacher's convention of gating container-backed tests behind an env flag.
func TestNewClientAppliesMigrations(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run container-backed database tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("krai"),
		postgres.WithUsername("krai"),
		postgres.WithPassword("krai"),
		postgres.WithWaitStrategy(tcwait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{DatabaseURL: connStr, MaxOpenConns: 5, MaxIdleConns: 1})
	require.NoError(t, err)
	defer client.Close()

	var schemaCount int
	row := client.Pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.schemata WHERE schema_name = 'krai_core'`)
	require.NoError(t, row.Scan(&schemaCount))
	require.Equal(t, 1, schemaCount)

	status, err := Health(ctx, client.Pool)
	require.NoError(t, err)
	require.Equal(t, "healthy", status.Status)
}
