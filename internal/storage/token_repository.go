package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/types"
	"github.com/jackc/pgx/v5"
)

// TokenRepository handles token data persistence
type TokenRepository struct {
	db *PostgresDB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *PostgresDB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create registers a discovered token with its metadata snapshot.
// Re-registering an existing token is a silent no-op so repeated discovery
// of the same contract stays idempotent.
func (r *TokenRepository) Create(ctx context.Context, token *models.Token) error {
	if err := ValidateAddress(token.Address); err != nil {
		return err
	}
	token.Address = strings.ToLower(token.Address)

	if token.LogoStatus == "" {
		token.LogoStatus = types.LogoNone
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, decimals, total_supply,
			logo_status, logo_url, description, website, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		token.Address,
		token.Name,
		token.Symbol,
		token.Decimals,
		token.TotalSupply,
		token.LogoStatus,
		token.LogoURL,
		token.Description,
		token.Website,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create token %s: %w", token.Address, err)
	}

	return nil
}

// Exists reports whether a token has been registered
func (r *TokenRepository) Exists(ctx context.Context, address string) (bool, error) {
	if err := ValidateAddress(address); err != nil {
		return false, err
	}
	address = strings.ToLower(address)

	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM tokens WHERE address = $1)`

	if err := r.db.Pool().QueryRow(ctx, query, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check token %s: %w", address, err)
	}

	return exists, nil
}

// Get retrieves a token record
func (r *TokenRepository) Get(ctx context.Context, address string) (*models.Token, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)

	query := selectTokenColumns + ` WHERE address = $1`

	row := r.db.Pool().QueryRow(ctx, query, address)

	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("token %s not found", address)
		}
		return nil, fmt.Errorf("failed to get token %s: %w", address, err)
	}

	return token, nil
}

// SubmitLogo records a logo submission and moves the token into the pending
// review state. Only tokens without an approved or pending logo accept a
// submission.
func (r *TokenRepository) SubmitLogo(ctx context.Context, address, logoURL string, description, website *string) (*models.Token, error) {
	token, err := r.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	if !token.LogoStatus.CanTransitionTo(types.LogoPending) {
		return nil, fmt.Errorf("token %s cannot accept a logo submission in state %s", token.Address, token.LogoStatus)
	}

	query := `
		UPDATE tokens
		SET logo_status = $2, logo_url = $3, description = $4, website = $5
		WHERE address = $1 AND logo_status = $6
	`

	result, err := r.db.Pool().Exec(ctx, query,
		token.Address, types.LogoPending, logoURL, description, website, token.LogoStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit logo for token %s: %w", token.Address, err)
	}

	if result.RowsAffected() == 0 {
		return nil, fmt.Errorf("logo submission for token %s lost a concurrent state change", token.Address)
	}

	return r.Get(ctx, address)
}

// ReviewLogo applies an admin review decision. Approval moves pending to
// approved; rejection clears the submission back to no_logo. Transitions the
// state machine forbids are rejected.
func (r *TokenRepository) ReviewLogo(ctx context.Context, address string, next types.LogoStatus) (*models.Token, error) {
	token, err := r.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	if !token.LogoStatus.CanTransitionTo(next) {
		return nil, fmt.Errorf("token %s cannot move from %s to %s", token.Address, token.LogoStatus, next)
	}

	query := `UPDATE tokens SET logo_status = $2 WHERE address = $1 AND logo_status = $3`
	args := []any{token.Address, next, token.LogoStatus}

	if next == types.LogoNone {
		// Rejection discards the submitted artifacts
		query = `
			UPDATE tokens
			SET logo_status = $2, logo_url = NULL, description = NULL, website = NULL
			WHERE address = $1 AND logo_status = $3
		`
	}

	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to review logo for token %s: %w", token.Address, err)
	}

	if result.RowsAffected() == 0 {
		return nil, fmt.Errorf("logo review for token %s lost a concurrent state change", token.Address)
	}

	return r.Get(ctx, address)
}

// ListByLogoStatus retrieves tokens in the given logo state, newest first
func (r *TokenRepository) ListByLogoStatus(ctx context.Context, status types.LogoStatus, limit int) ([]*models.Token, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := selectTokenColumns + `
		WHERE logo_status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens by logo status: %w", err)
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return tokens, nil
}

const selectTokenColumns = `
	SELECT address, name, symbol, decimals, total_supply,
		   logo_status, logo_url, description, website, created_at
	FROM tokens
`

func scanToken(row rowScanner) (*models.Token, error) {
	var token models.Token

	err := row.Scan(
		&token.Address,
		&token.Name,
		&token.Symbol,
		&token.Decimals,
		&token.TotalSupply,
		&token.LogoStatus,
		&token.LogoURL,
		&token.Description,
		&token.Website,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &token, nil
}
