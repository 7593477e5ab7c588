package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chain-explorer/internal/models"
	"github.com/jackc/pgx/v5"
)

// BlockRepository handles block data persistence
type BlockRepository struct {
	db *PostgresDB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *PostgresDB) *BlockRepository {
	return &BlockRepository{db: db}
}

// Insert persists a block. Re-inserting an existing height is a silent
// no-op; blocks are immutable once written.
func (r *BlockRepository) Insert(ctx context.Context, block *models.Block) error {
	block.Hash = strings.ToLower(block.Hash)
	block.Miner = strings.ToLower(block.Miner)

	query := `
		INSERT INTO blocks (
			number, hash, miner, timestamp, gas_used, gas_limit,
			size, base_fee_per_gas, burnt_fees, transaction_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (number) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		block.Number,
		block.Hash,
		block.Miner,
		block.Timestamp,
		block.GasUsed,
		block.GasLimit,
		block.Size,
		block.BaseFeePerGas,
		block.BurntFees,
		block.TransactionCount,
	)

	if err != nil {
		return fmt.Errorf("failed to insert block %d: %w", block.Number, err)
	}

	return nil
}

// Exists reports whether a block at the given height has been persisted
func (r *BlockRepository) Exists(ctx context.Context, number uint64) (bool, error) {
	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM blocks WHERE number = $1)`

	if err := r.db.Pool().QueryRow(ctx, query, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check block %d: %w", number, err)
	}

	return exists, nil
}

// GetByNumber retrieves a block by height
func (r *BlockRepository) GetByNumber(ctx context.Context, number uint64) (*models.Block, error) {
	query := `
		SELECT number, hash, miner, timestamp, gas_used, gas_limit,
			   size, base_fee_per_gas, burnt_fees, transaction_count
		FROM blocks
		WHERE number = $1
	`

	var block models.Block

	err := r.db.Pool().QueryRow(ctx, query, number).Scan(
		&block.Number,
		&block.Hash,
		&block.Miner,
		&block.Timestamp,
		&block.GasUsed,
		&block.GasLimit,
		&block.Size,
		&block.BaseFeePerGas,
		&block.BurntFees,
		&block.TransactionCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("block %d not found", number)
		}
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	return &block, nil
}

// GetByHash retrieves a block by its hash
func (r *BlockRepository) GetByHash(ctx context.Context, hash string) (*models.Block, error) {
	hash = strings.ToLower(hash)

	query := `
		SELECT number, hash, miner, timestamp, gas_used, gas_limit,
			   size, base_fee_per_gas, burnt_fees, transaction_count
		FROM blocks
		WHERE hash = $1
	`

	var block models.Block

	err := r.db.Pool().QueryRow(ctx, query, hash).Scan(
		&block.Number,
		&block.Hash,
		&block.Miner,
		&block.Timestamp,
		&block.GasUsed,
		&block.GasLimit,
		&block.Size,
		&block.BaseFeePerGas,
		&block.BurntFees,
		&block.TransactionCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("block %s not found", hash)
		}
		return nil, fmt.Errorf("failed to get block %s: %w", hash, err)
	}

	return &block, nil
}

// ListLatest retrieves the most recent blocks, newest first
func (r *BlockRepository) ListLatest(ctx context.Context, limit int) ([]*models.Block, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := `
		SELECT number, hash, miner, timestamp, gas_used, gas_limit,
			   size, base_fee_per_gas, burnt_fees, transaction_count
		FROM blocks
		ORDER BY number DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block
	for rows.Next() {
		var block models.Block

		err := rows.Scan(
			&block.Number,
			&block.Hash,
			&block.Miner,
			&block.Timestamp,
			&block.GasUsed,
			&block.GasLimit,
			&block.Size,
			&block.BaseFeePerGas,
			&block.BurntFees,
			&block.TransactionCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}

		blocks = append(blocks, &block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}

	return blocks, nil
}

// LatestNumber returns the highest persisted block number, or ok=false when
// no blocks have been persisted yet
func (r *BlockRepository) LatestNumber(ctx context.Context) (uint64, bool, error) {
	var number *int64

	query := `SELECT MAX(number) FROM blocks`

	if err := r.db.Pool().QueryRow(ctx, query).Scan(&number); err != nil {
		return 0, false, fmt.Errorf("failed to get latest block number: %w", err)
	}

	if number == nil {
		return 0, false, nil
	}

	return uint64(*number), true, nil
}
