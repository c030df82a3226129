package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenStatus represents the lifecycle phase of a token.
// ACTIVE -> GRADUATED happens exactly once and never reverses.
type TokenStatus string

const (
	TokenStatusActive    TokenStatus = "ACTIVE"
	TokenStatusGraduated TokenStatus = "GRADUATED"
	TokenStatusInactive  TokenStatus = "INACTIVE"
)

// Reserve holds the bonding-curve state for one token. Virtual reserves are
// used only for pricing; real reserves are the transferable backing amounts.
// All values are in smallest units (lamports / raw token units).
type Reserve struct {
	VirtualBase  int64 `gorm:"column:virtual_base_reserves" json:"virtual_base_reserves"`
	VirtualAsset int64 `gorm:"column:virtual_asset_reserves" json:"virtual_asset_reserves"`
	RealBase     int64 `gorm:"column:real_base_reserves" json:"real_base_reserves"`
	RealAsset    int64 `gorm:"column:real_asset_reserves" json:"real_asset_reserves"`
	TotalSupply  int64 `gorm:"column:total_supply" json:"total_supply"`
}

// Token is the tradable asset backed by a bonding curve. Exactly one Reserve
// exists per token, embedded in the row; it is mutated optimistically by
// settlement and overwritten authoritatively by reconciliation.
type Token struct {
	MintAddress string `gorm:"primaryKey;size:44" json:"mint_address"`
	Name        string `gorm:"size:100" json:"name"`
	Symbol      string `gorm:"size:10" json:"symbol"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IconPath    string `json:"icon_path,omitempty"`
	Creator     string `gorm:"size:44" json:"creator,omitempty"`
	Decimals    int    `json:"decimals"`

	Reserve Reserve `gorm:"embedded" json:"reserve"`

	// GraduationThreshold is the real base-currency amount (lamports) at
	// which the curve graduates under the base_threshold rule.
	GraduationThreshold int64       `json:"graduation_threshold"`
	Status              TokenStatus `gorm:"size:20;index" json:"status"`

	CurrentPrice decimal.Decimal `gorm:"type:decimal(30,18)" json:"current_price"`
	MarketCap    decimal.Decimal `gorm:"type:decimal(30,9)" json:"market_cap"`
	ProgressPct  decimal.Decimal `gorm:"type:decimal(5,2)" json:"progress_pct"`
	Volume       int64           `json:"volume"` // cumulative traded base amount, lamports
	HoldersCount int             `json:"holders_count"`

	GraduatedAt *time.Time `json:"graduated_at,omitempty"`
	LastTradeAt *time.Time `json:"last_trade_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Active reports whether the token still trades on the curve.
func (t *Token) Active() bool {
	return t.Status == TokenStatusActive
}
