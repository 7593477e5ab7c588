// Package types provides common type definitions for the chain explorer system.
package types

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// Transaction receipt status values as reported by the upstream node
const (
	// TxStatusFailed represents a reverted transaction
	TxStatusFailed uint64 = 0
	// TxStatusSuccess represents a successful transaction
	TxStatusSuccess uint64 = 1
)

// AddressKind classifies an address as externally owned or a contract
type AddressKind string

const (
	// KindExternal represents an externally owned account
	KindExternal AddressKind = "eoa"
	// KindContract represents a contract account
	KindContract AddressKind = "contract"
)

// LogoStatus represents the review state of a token logo submission
type LogoStatus string

const (
	// LogoNone means no logo has been submitted for the token
	LogoNone LogoStatus = "no_logo"
	// LogoPending means a logo was submitted and awaits admin review
	LogoPending LogoStatus = "pending"
	// LogoApproved means the submitted logo passed admin review
	LogoApproved LogoStatus = "approved"
)

// CanTransitionTo reports whether the logo state machine allows moving from
// s to next. Rejection from pending or approved resets to LogoNone.
func (s LogoStatus) CanTransitionTo(next LogoStatus) bool {
	switch s {
	case LogoNone:
		return next == LogoPending
	case LogoPending:
		return next == LogoApproved || next == LogoNone
	case LogoApproved:
		return next == LogoNone
	}
	return false
}

// EventKind identifies a change notification emitted by the sync engine or
// its collaborators
type EventKind string

const (
	// EventNewBlock is emitted once per persisted block
	EventNewBlock EventKind = "new_block"
	// EventNewTransaction is emitted by collaborators replaying block contents
	EventNewTransaction EventKind = "new_transaction"
	// EventContractVerified is emitted when a contract verification succeeds
	EventContractVerified EventKind = "contract_verified"
	// EventTokenLogoSubmitted is emitted when a logo is submitted for review
	EventTokenLogoSubmitted EventKind = "token_logo_submitted"
	// EventTokenLogoStatusChanged is emitted on admin approval or rejection
	EventTokenLogoStatusChanged EventKind = "token_logo_status_changed"
	// EventTokenDeployed is emitted when token discovery registers a new token
	EventTokenDeployed EventKind = "token_deployed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
