package ch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"scraperhub/internal/models"
)

// runMigrations creates the transactions table from scratch
func runMigrations(ctx context.Context, log *TransactionLog) error {
	_ = log.conn.Exec(ctx, "DROP TABLE IF EXISTS transactions")

	return log.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id String,
			game String,
			action String,
			username String,
			amount Float64,
			status String,
			message String,
			created_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY created_at
	`)
}

// setupTestLog creates a test ClickHouse instance using testcontainers
func setupTestLog(t *testing.T) (*TransactionLog, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse integration test in short mode")
	}

	ctx := context.Background()

	container, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword("testpassword"),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	log, err := NewTransactionLog(host, port.Int(), "default", "default", "testpassword", false)
	require.NoError(t, err, "Failed to connect to test ClickHouse")

	require.NoError(t, runMigrations(ctx, log), "Failed to run migrations")

	cleanup := func() {
		log.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
	return log, cleanup
}

func TestTransactionLog_RecordAndList(t *testing.T) {
	log, cleanup := setupTestLog(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	txs := []models.Transaction{
		{Game: "egame99", Action: "recharge", Username: "euser01", Amount: 50, Status: "success", Message: "Success", CreatedAt: base},
		{Game: "egame99", Action: "redeem", Username: "euser01", Amount: 20, Status: "error", Message: "Insufficient Credit", CreatedAt: base.Add(time.Second)},
		{Game: "juwa777", Action: "signup", Username: "jnewb07", Status: "success", Message: "Added successfully", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, tx := range txs {
		require.NoError(t, log.RecordTransaction(ctx, tx))
	}

	all, err := log.ListTransactions(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "juwa777", all[0].Game, "newest transaction should come first")
	assert.NotEmpty(t, all[0].ID, "missing id should be generated on insert")

	egame, err := log.ListTransactions(ctx, "egame99", 10)
	require.NoError(t, err)
	require.Len(t, egame, 2)
	for _, tx := range egame {
		assert.Equal(t, "egame99", tx.Game)
	}

	limited, err := log.ListTransactions(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTransactionLog_FillsDefaults(t *testing.T) {
	log, cleanup := setupTestLog(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, log.RecordTransaction(ctx, models.Transaction{
		Game:   "pandamaster",
		Action: "agent_balance",
		Status: "success",
	}))

	got, err := log.ListTransactions(ctx, "pandamaster", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}
