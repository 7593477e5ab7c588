// Package sync implements the chain synchronization engine: live-feed
// subscription, startup catch-up and the per-block ingestion pipeline.
package sync

import (
	"context"
	"time"

	"github.com/chain-explorer/internal/adapter"
	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/types"
)

// The engine depends on narrow store interfaces rather than concrete
// repositories so tests can substitute in-memory fakes.

// BlockStore persists blocks
type BlockStore interface {
	Insert(ctx context.Context, block *models.Block) error
	Exists(ctx context.Context, number uint64) (bool, error)
}

// TransactionStore persists transactions and skip records
type TransactionStore interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	Exists(ctx context.Context, hash string) (bool, error)
	RecordSkipped(ctx context.Context, blockNumber uint64, hash, reason string) error
}

// AddressStore maintains observed address records
type AddressStore interface {
	Touch(ctx context.Context, address, balance string, kind types.AddressKind, seenAt time.Time) error
	MarkContract(ctx context.Context, address string) error
}

// ContractStore registers detected contracts
type ContractStore interface {
	CreateUnverified(ctx context.Context, address, creator string, creationTx *string) error
}

// TokenStore registers discovered tokens
type TokenStore interface {
	Exists(ctx context.Context, address string) (bool, error)
	Create(ctx context.Context, token *models.Token) error
}

// CursorStore persists the singleton ingestion cursor
type CursorStore interface {
	Get(ctx context.Context) (*models.SyncCursor, bool, error)
	Advance(ctx context.Context, blockNumber uint64) error
	SetConnected(ctx context.Context, connected bool) error
}

// StatsSink mirrors transaction facts for aggregation. The mirror is
// best-effort; its errors never fail ingestion.
type StatsSink interface {
	MirrorTransactions(ctx context.Context, transactions []*models.Transaction) error
}

// Publisher fans change events out to subscribers
type Publisher interface {
	Publish(kind types.EventKind, payload any)
}

// MetadataReader fetches ERC-20 metadata for token discovery
type MetadataReader interface {
	Metadata(ctx context.Context, contract string) *adapter.TokenMetadata
}
