package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chain-explorer/internal/models"
	"github.com/chain-explorer/internal/types"
)

// ChainAdapter defines the capability set exposed to the sync engine.
// All operations may fail with a transient (network/timeout) or permanent
// (malformed response) error; callers treat adapter failures as transient by
// default and defer retry to the next catch-up pass or head notification.
type ChainAdapter interface {
	// BlockNumber returns the current chain height
	BlockNumber(ctx context.Context) (uint64, error)

	// BlockByNumber fetches a block with its transaction hashes inlined.
	// Returns ErrBlockNotFound when the block has not propagated to the
	// queried node yet.
	BlockByNumber(ctx context.Context, number uint64) (*BlockData, error)

	// TransactionByHash fetches a transaction body.
	// Returns ErrTransactionNotFound when the node does not know the hash.
	TransactionByHash(ctx context.Context, hash string) (*TxData, error)

	// TransactionReceipt fetches the receipt for a mined transaction
	TransactionReceipt(ctx context.Context, hash string) (*ReceiptData, error)

	// BalanceAt returns the current native balance as a decimal string
	BalanceAt(ctx context.Context, address string) (string, error)

	// CodeAt returns the deployed bytecode at an address (empty for EOAs)
	CodeAt(ctx context.Context, address string) ([]byte, error)

	// CallView invokes an allow-listed read-only contract function and
	// returns the raw return data. Arbitrary ABI-driven invocation is
	// deliberately not exposed.
	CallView(ctx context.Context, contract string, fn ViewFunction) ([]byte, error)

	// SubscribeNewHeads opens a subscription to new-block notifications
	SubscribeNewHeads(ctx context.Context) (HeadSubscription, error)

	// ChainID returns the chain identifier
	ChainID() types.ChainID

	// Close releases the underlying clients
	Close()
}

// HeadSubscription is a live stream of new chain heights. Err delivers the
// terminal subscription error; Unsubscribe releases the stream.
type HeadSubscription interface {
	Heads() <-chan uint64
	Err() <-chan error
	Unsubscribe()
}

// ViewFunction identifies an allow-listed read-only contract call
type ViewFunction string

const (
	// ViewName is the ERC-20 name() view function
	ViewName ViewFunction = "name"
	// ViewSymbol is the ERC-20 symbol() view function
	ViewSymbol ViewFunction = "symbol"
	// ViewDecimals is the ERC-20 decimals() view function
	ViewDecimals ViewFunction = "decimals"
	// ViewTotalSupply is the ERC-20 totalSupply() view function
	ViewTotalSupply ViewFunction = "totalSupply"
)

// BlockData is a normalized block with transaction hashes in array order
type BlockData struct {
	Number   uint64
	Hash     string
	Miner    string
	Time     uint64
	GasUsed  uint64
	GasLimit uint64
	Size     uint64
	BaseFee  *big.Int
	TxHashes []string
}

// TxData is a normalized transaction body
type TxData struct {
	Hash     string
	From     string
	To       *string // nil for contract creation
	Value    *big.Int
	GasPrice *big.Int
	Nonce    uint64
	Input    []byte
}

// ReceiptData is a normalized transaction receipt
type ReceiptData struct {
	Status          uint64
	GasUsed         uint64
	TxIndex         uint
	ContractAddress *string // set when the transaction created a contract
	Logs            []models.EventLog
}

// Common error types for chain adapters

var (
	// ErrBlockNotFound indicates the requested block was not found
	ErrBlockNotFound = fmt.Errorf("block not found")

	// ErrTransactionNotFound indicates the requested transaction was not found
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrUnknownViewFunction indicates the view function is not allow-listed
	ErrUnknownViewFunction = fmt.Errorf("view function not allow-listed")

	// ErrSubscriptionsUnavailable indicates no subscription endpoint is configured
	ErrSubscriptionsUnavailable = fmt.Errorf("subscription endpoint not configured")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string // Operation that failed (e.g., "BlockByNumber", "CallView")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
