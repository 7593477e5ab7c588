package models

import "time"

// SyncCursor is the singleton record tracking ingestion progress. It is the
// single source of truth for where ingestion resumes after a restart.
type SyncCursor struct {
	LastBlock    uint64    `json:"lastBlock" db:"last_block"`
	LastSyncedAt time.Time `json:"lastSyncedAt" db:"last_synced_at"`
	Connected    bool      `json:"connected" db:"connected"`
}
