package models

import (
	"time"

	"github.com/chain-explorer/internal/types"
)

// Address represents an observed account. Balance, LastSeen and
// TransactionCount are refreshed on every observed interaction; FirstSeen
// and Kind are set once at creation.
type Address struct {
	Address          string            `json:"address" db:"address"`
	Balance          string            `json:"balance" db:"balance"`
	Kind             types.AddressKind `json:"kind" db:"kind"`
	FirstSeen        time.Time         `json:"firstSeen" db:"first_seen"`
	LastSeen         time.Time         `json:"lastSeen" db:"last_seen"`
	TransactionCount uint64            `json:"transactionCount" db:"transaction_count"`
}
