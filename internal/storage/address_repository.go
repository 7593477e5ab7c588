package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/types"
	"github.com/jackc/pgx/v5"
)

// Ethereum address regex pattern (0x followed by 40 hexadecimal characters)
var ethereumAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// AddressRepository handles address data persistence
type AddressRepository struct {
	db *PostgresDB
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db *PostgresDB) *AddressRepository {
	return &AddressRepository{db: db}
}

// ValidateAddress validates an Ethereum address format
func ValidateAddress(address string) error {
	if !ethereumAddressRegex.MatchString(address) {
		return &types.ServiceError{
			Code:    "INVALID_ADDRESS_FORMAT",
			Message: fmt.Sprintf("invalid address format: %s (must be 0x followed by 40 hexadecimal characters)", address),
			Details: map[string]any{
				"address": address,
				"format":  "0x[a-fA-F0-9]{40}",
			},
		}
	}
	return nil
}

// Touch records an observed interaction for an address. On first sight it
// creates the row with kind, first_seen and a count of 1; on every later
// sight it refreshes balance and last_seen and increments the counter
// atomically in SQL, so concurrent touches never lose increments.
func (r *AddressRepository) Touch(ctx context.Context, address, balance string, kind types.AddressKind, seenAt time.Time) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	address = strings.ToLower(address)

	query := `
		INSERT INTO addresses (
			address, balance, kind, first_seen, last_seen, transaction_count
		)
		VALUES ($1, $2, $3, $4, $4, 1)
		ON CONFLICT (address)
		DO UPDATE SET
			balance = EXCLUDED.balance,
			last_seen = EXCLUDED.last_seen,
			transaction_count = addresses.transaction_count + 1
	`

	_, err := r.db.Pool().Exec(ctx, query, address, balance, kind, seenAt)
	if err != nil {
		return fmt.Errorf("failed to touch address %s: %w", address, err)
	}

	return nil
}

// MarkContract upgrades an address to contract kind. EOA rows created before
// code was deployed at the address get reclassified here.
func (r *AddressRepository) MarkContract(ctx context.Context, address string) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	address = strings.ToLower(address)

	query := `UPDATE addresses SET kind = $2 WHERE address = $1`

	_, err := r.db.Pool().Exec(ctx, query, address, types.KindContract)
	if err != nil {
		return fmt.Errorf("failed to mark address %s as contract: %w", address, err)
	}

	return nil
}

// Get retrieves an address record
func (r *AddressRepository) Get(ctx context.Context, address string) (*models.Address, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)

	query := `
		SELECT address, balance, kind, first_seen, last_seen, transaction_count
		FROM addresses
		WHERE address = $1
	`

	var addr models.Address

	err := r.db.Pool().QueryRow(ctx, query, address).Scan(
		&addr.Address,
		&addr.Balance,
		&addr.Kind,
		&addr.FirstSeen,
		&addr.LastSeen,
		&addr.TransactionCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("address %s not found", address)
		}
		return nil, fmt.Errorf("failed to get address %s: %w", address, err)
	}

	return &addr, nil
}

// ListTop retrieves the busiest addresses by observed transaction count
func (r *AddressRepository) ListTop(ctx context.Context, limit int) ([]*models.Address, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := `
		SELECT address, balance, kind, first_seen, last_seen, transaction_count
		FROM addresses
		ORDER BY transaction_count DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []*models.Address
	for rows.Next() {
		var addr models.Address

		err := rows.Scan(
			&addr.Address,
			&addr.Balance,
			&addr.Kind,
			&addr.FirstSeen,
			&addr.LastSeen,
			&addr.TransactionCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}

		addresses = append(addresses, &addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}

	return addresses, nil
}
