package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chain-explorer/internal/models"
	"github.com/jackc/pgx/v5"
)

// SyncCursorRepository handles the singleton sync cursor record. The table
// holds at most one row, keyed by a fixed id.
type SyncCursorRepository struct {
	db *PostgresDB
}

// NewSyncCursorRepository creates a new sync cursor repository
func NewSyncCursorRepository(db *PostgresDB) *SyncCursorRepository {
	return &SyncCursorRepository{db: db}
}

// Get retrieves the sync cursor, or ok=false when no cursor has been
// written yet (fresh deployment)
func (r *SyncCursorRepository) Get(ctx context.Context) (*models.SyncCursor, bool, error) {
	query := `
		SELECT last_block, last_synced_at, connected
		FROM sync_cursor
		WHERE id = 1
	`

	var cursor models.SyncCursor

	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&cursor.LastBlock,
		&cursor.LastSyncedAt,
		&cursor.Connected,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get sync cursor: %w", err)
	}

	return &cursor, true, nil
}

// Advance records a newly processed block height and stamps the sync time.
// The upsert keeps the table at a single row across restarts.
func (r *SyncCursorRepository) Advance(ctx context.Context, blockNumber uint64) error {
	query := `
		INSERT INTO sync_cursor (id, last_block, last_synced_at, connected)
		VALUES (1, $1, $2, true)
		ON CONFLICT (id)
		DO UPDATE SET
			last_block = EXCLUDED.last_block,
			last_synced_at = EXCLUDED.last_synced_at
	`

	_, err := r.db.Pool().Exec(ctx, query, blockNumber, time.Now())
	if err != nil {
		return fmt.Errorf("failed to advance sync cursor to block %d: %w", blockNumber, err)
	}

	return nil
}

// SetConnected records the live feed connection state
func (r *SyncCursorRepository) SetConnected(ctx context.Context, connected bool) error {
	query := `
		INSERT INTO sync_cursor (id, last_block, last_synced_at, connected)
		VALUES (1, 0, $2, $1)
		ON CONFLICT (id)
		DO UPDATE SET connected = EXCLUDED.connected
	`

	_, err := r.db.Pool().Exec(ctx, query, connected, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set sync connection state: %w", err)
	}

	return nil
}
