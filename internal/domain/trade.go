package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a settled trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Valid reports whether the side is one of the known constants.
func (s TradeSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is an immutable record of one settlement already finalized by the
// external ledger. Signature is the unique settlement reference; a duplicate
// submission is rejected without side effects.
type Trade struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Signature   string          `gorm:"uniqueIndex;size:88" json:"signature"`
	MintAddress string          `gorm:"index;size:44" json:"mint_address"`
	Wallet      string          `gorm:"index;size:44" json:"wallet"`
	Side        TradeSide       `gorm:"size:4" json:"side"`
	BaseAmount  int64           `json:"base_amount"`  // lamports, gross of fee
	AssetAmount int64           `json:"asset_amount"` // raw token units
	PricePerUnit decimal.Decimal `gorm:"type:decimal(30,18)" json:"price_per_unit"`
	PlatformFee int64           `json:"platform_fee"`
	SettledAt   time.Time       `json:"settled_at"`
}

// Holding tracks one wallet's position in one token. Amount never goes
// negative; AveragePrice follows a weighted-average-cost rule on buys and is
// left untouched on sells.
type Holding struct {
	Wallet       string          `gorm:"primaryKey;size:44" json:"wallet"`
	MintAddress  string          `gorm:"primaryKey;size:44" json:"mint_address"`
	Amount       int64           `json:"amount"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(30,18)" json:"average_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
