package models

import (
	"time"

	"github.com/chain-explorer/internal/types"
)

// Token represents an ERC-20 token contract registered by token discovery.
// Metadata is a one-shot snapshot fetched at creation time; logo and
// description fields are owned by the admin review collaborator.
type Token struct {
	Address     string           `json:"address" db:"address"`
	Name        string           `json:"name" db:"name"`
	Symbol      string           `json:"symbol" db:"symbol"`
	Decimals    uint8            `json:"decimals" db:"decimals"`
	TotalSupply string           `json:"totalSupply" db:"total_supply"`
	LogoStatus  types.LogoStatus `json:"logoStatus" db:"logo_status"`
	LogoURL     *string          `json:"logoUrl,omitempty" db:"logo_url"`
	Description *string          `json:"description,omitempty" db:"description"`
	Website     *string          `json:"website,omitempty" db:"website"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
}
