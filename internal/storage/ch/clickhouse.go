package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"scraperhub/internal/models"
)

// TransactionLog is the ClickHouse-backed implementation of
// storage.TransactionLog. The log is append-only, which is the one part of
// this service that actually wants a durable columnar store: every recharge,
// redeem and signup lands here for later reconciliation.
type TransactionLog struct {
	conn clickhouse.Conn
}

// NewTransactionLog opens a ClickHouse connection for the transaction log
func NewTransactionLog(host string, port int, database, user, password string, useTLS bool) (*TransactionLog, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &TransactionLog{conn: conn}, nil
}

// RecordTransaction appends a finished scraper action.
// The schema is managed via migrations (see migrations/ directory).
func (l *TransactionLog) RecordTransaction(ctx context.Context, tx models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	err := l.conn.Exec(ctx, `INSERT INTO transactions (id, game, action, username, amount, status, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Game, tx.Action, tx.Username, tx.Amount, tx.Status, tx.Message, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent transactions, newest first
func (l *TransactionLog) ListTransactions(ctx context.Context, game string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, game, action, username, amount, status, message, created_at FROM transactions`
	args := []any{}
	if game != "" {
		query += ` WHERE game = ?`
		args = append(args, game)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Game, &tx.Action, &tx.Username, &tx.Amount, &tx.Status, &tx.Message, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// Close closes the database connection
func (l *TransactionLog) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
