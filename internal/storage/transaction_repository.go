package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chain-explorer/internal/models"
	"github.com/jackc/pgx/v5"
)

// TransactionRepository handles transaction data persistence
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert persists a transaction. Re-inserting an existing hash is a silent
// no-op; transactions are immutable once written.
func (r *TransactionRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	if err := ValidateAddress(tx.From); err != nil {
		return fmt.Errorf("invalid sender %s: %w", tx.From, err)
	}
	tx.Hash = strings.ToLower(tx.Hash)
	tx.From = strings.ToLower(tx.From)
	if tx.To != nil {
		to := strings.ToLower(*tx.To)
		tx.To = &to
	}

	logsJSON := []byte("[]")
	if len(tx.Logs) > 0 {
		var err error
		logsJSON, err = json.Marshal(tx.Logs)
		if err != nil {
			return fmt.Errorf("failed to marshal logs for tx %s: %w", tx.Hash, err)
		}
	}

	query := `
		INSERT INTO transactions (
			hash, block_number, from_address, to_address, value, gas_price,
			gas_used, status, nonce, tx_index, input, method_id,
			contract_created, timestamp, logs
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (hash) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		tx.Hash,
		tx.BlockNumber,
		tx.From,
		tx.To,
		tx.Value,
		tx.GasPrice,
		tx.GasUsed,
		tx.Status,
		tx.Nonce,
		tx.TxIndex,
		tx.Input,
		tx.MethodID,
		tx.ContractCreated,
		tx.Timestamp,
		string(logsJSON),
	)

	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.Hash, err)
	}

	return nil
}

// Exists checks whether a transaction has already been persisted
func (r *TransactionRepository) Exists(ctx context.Context, hash string) (bool, error) {
	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE hash = $1)`

	if err := r.db.Pool().QueryRow(ctx, query, strings.ToLower(hash)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", hash, err)
	}

	return exists, nil
}

// RecordSkipped records a transaction hash that could not be ingested with
// its block so operators can replay it later
func (r *TransactionRepository) RecordSkipped(ctx context.Context, blockNumber uint64, hash, reason string) error {
	hash = strings.ToLower(hash)

	query := `
		INSERT INTO skipped_transactions (hash, block_number, reason, skipped_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET
			reason = EXCLUDED.reason,
			skipped_at = EXCLUDED.skipped_at
	`

	_, err := r.db.Pool().Exec(ctx, query, hash, blockNumber, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record skipped transaction %s: %w", hash, err)
	}

	return nil
}

// GetByHash retrieves a transaction by hash
func (r *TransactionRepository) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	hash = strings.ToLower(hash)

	query := selectTransactionColumns + ` WHERE hash = $1`

	row := r.db.Pool().QueryRow(ctx, query, hash)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s not found", hash)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	return tx, nil
}

// ListByBlock retrieves all transactions in a block ordered by index
func (r *TransactionRepository) ListByBlock(ctx context.Context, blockNumber uint64) ([]*models.Transaction, error) {
	query := selectTransactionColumns + ` WHERE block_number = $1 ORDER BY tx_index ASC`

	rows, err := r.db.Pool().Query(ctx, query, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for block %d: %w", blockNumber, err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListByAddress retrieves transactions where the address is sender or
// recipient, newest first
func (r *TransactionRepository) ListByAddress(ctx context.Context, address string, limit int) ([]*models.Transaction, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)

	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := selectTransactionColumns + `
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_number DESC, tx_index DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for address %s: %w", address, err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListLatest retrieves the most recent transactions, newest first
func (r *TransactionRepository) ListLatest(ctx context.Context, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := selectTransactionColumns + `
		ORDER BY block_number DESC, tx_index DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

const selectTransactionColumns = `
	SELECT hash, block_number, from_address, to_address, value, gas_price,
		   gas_used, status, nonce, tx_index, input, method_id,
		   contract_created, timestamp, logs
	FROM transactions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var logsJSON string

	err := row.Scan(
		&tx.Hash,
		&tx.BlockNumber,
		&tx.From,
		&tx.To,
		&tx.Value,
		&tx.GasPrice,
		&tx.GasUsed,
		&tx.Status,
		&tx.Nonce,
		&tx.TxIndex,
		&tx.Input,
		&tx.MethodID,
		&tx.ContractCreated,
		&tx.Timestamp,
		&logsJSON,
	)
	if err != nil {
		return nil, err
	}

	if logsJSON != "" && logsJSON != "[]" {
		if err := json.Unmarshal([]byte(logsJSON), &tx.Logs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal logs for tx %s: %w", tx.Hash, err)
		}
	}

	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}
