package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holder is one external account holding a token, rebuilt wholesale from a
// chain snapshot each aggregation cycle. FirstSeenAt survives rebuilds while
// the account keeps a balance; zero-balance accounts are dropped.
type Holder struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	MintAddress   string          `gorm:"size:44;uniqueIndex:idx_mint_wallet" json:"mint_address"`
	Wallet        string          `gorm:"size:44;uniqueIndex:idx_mint_wallet" json:"wallet"`
	Balance       int64           `json:"balance"` // raw token units
	Percentage    decimal.Decimal `gorm:"type:decimal(5,2)" json:"percentage"`
	FirstSeenAt   time.Time       `json:"first_seen_at"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

// TokenBalance is a raw chain snapshot entry: one token account, its owning
// wallet and its balance in raw units.
type TokenBalance struct {
	Account string
	Owner   string
	Amount  uint64
}
