package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChainReader is the external ledger read side. Every call is a single
// blocking request with a bounded timeout; failures are per-call and map to
// ExternalServiceError.
type ChainReader interface {
	// FetchCurveAccount returns the raw bytes of the bonding-curve account
	// derived for the given mint.
	FetchCurveAccount(ctx context.Context, mint string) ([]byte, error)
	// TokenAccounts enumerates all token accounts holding the given mint.
	TokenAccounts(ctx context.Context, mint string) ([]TokenBalance, error)
}

// NotificationSink receives outbound events. Delivery is fire-and-forget;
// implementations must never block the caller.
type NotificationSink interface {
	PriceUpdate(mint string, price, marketCap decimal.Decimal, volume int64)
	TradeExecuted(symbol string, side TradeSide, assetAmount int64, price decimal.Decimal)
	Graduated(mint, name, symbol string)
}
