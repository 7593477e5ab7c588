package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chain-explorer/internal/models"
	"github.com/jackc/pgx/v5"
)

// ContractRepository handles contract data persistence
type ContractRepository struct {
	db *PostgresDB
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db *PostgresDB) *ContractRepository {
	return &ContractRepository{db: db}
}

// CreateUnverified registers a newly detected contract with creator
// provenance and no verification payload. Re-registering an existing
// contract is a silent no-op.
func (r *ContractRepository) CreateUnverified(ctx context.Context, address, creator string, creationTx *string) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	if err := ValidateAddress(creator); err != nil {
		return fmt.Errorf("invalid creator %s: %w", creator, err)
	}
	address = strings.ToLower(address)
	creator = strings.ToLower(creator)
	if creationTx != nil {
		tx := strings.ToLower(*creationTx)
		creationTx = &tx
	}

	query := `
		INSERT INTO contracts (address, creator, creation_tx, verified, created_at)
		VALUES ($1, $2, $3, false, $4)
		ON CONFLICT (address) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, address, creator, creationTx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create contract %s: %w", address, err)
	}

	return nil
}

// MarkVerified atomically populates the full verification payload and flips
// the verified flag in a single statement. Already-verified contracts are
// not overwritten.
func (r *ContractRepository) MarkVerified(ctx context.Context, address string, payload *models.VerificationPayload) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	address = strings.ToLower(address)

	query := `
		UPDATE contracts
		SET source_code = $2, compiler_version = $3, optimization_enabled = $4,
			optimization_runs = $5, constructor_args = $6, abi = $7,
			contract_name = $8, verified = true, verified_at = $9
		WHERE address = $1 AND verified = false
	`

	result, err := r.db.Pool().Exec(ctx, query,
		address,
		payload.SourceCode,
		payload.CompilerVersion,
		payload.OptimizationEnabled,
		payload.OptimizationRuns,
		payload.ConstructorArgs,
		payload.ABI,
		payload.ContractName,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to verify contract %s: %w", address, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("contract %s not found or already verified", address)
	}

	return nil
}

// Get retrieves a contract record
func (r *ContractRepository) Get(ctx context.Context, address string) (*models.Contract, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)

	query := selectContractColumns + ` WHERE address = $1`

	row := r.db.Pool().QueryRow(ctx, query, address)

	contract, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contract %s not found", address)
		}
		return nil, fmt.Errorf("failed to get contract %s: %w", address, err)
	}

	return contract, nil
}

// Exists reports whether a contract has been registered
func (r *ContractRepository) Exists(ctx context.Context, address string) (bool, error) {
	if err := ValidateAddress(address); err != nil {
		return false, err
	}
	address = strings.ToLower(address)

	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM contracts WHERE address = $1)`

	if err := r.db.Pool().QueryRow(ctx, query, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check contract %s: %w", address, err)
	}

	return exists, nil
}

// ListVerified retrieves verified contracts, most recently verified first
func (r *ContractRepository) ListVerified(ctx context.Context, limit int) ([]*models.Contract, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := selectContractColumns + `
		WHERE verified = true
		ORDER BY verified_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list verified contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, contract)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contracts: %w", err)
	}

	return contracts, nil
}

const selectContractColumns = `
	SELECT address, creator, creation_tx, source_code, compiler_version,
		   optimization_enabled, optimization_runs, constructor_args, abi,
		   contract_name, verified, verified_at, created_at
	FROM contracts
`

func scanContract(row rowScanner) (*models.Contract, error) {
	var contract models.Contract

	err := row.Scan(
		&contract.Address,
		&contract.Creator,
		&contract.CreationTx,
		&contract.SourceCode,
		&contract.CompilerVersion,
		&contract.OptimizationEnabled,
		&contract.OptimizationRuns,
		&contract.ConstructorArgs,
		&contract.ABI,
		&contract.ContractName,
		&contract.Verified,
		&contract.VerifiedAt,
		&contract.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &contract, nil
}
