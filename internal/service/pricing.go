package service

import (
	"curve_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Constant-product quote math for the bonding curve (base * asset = k).
// Pure functions, no I/O. All amounts are int64 smallest units; prices and
// percentages are decimals with 18 fractional digits. Rounding always favors
// the curve: buyers round up, sellers and receivers round down, fees round
// up in the platform's favor.

const (
	// LamportsPerSol converts lamports to whole base-currency units.
	LamportsPerSol = 1_000_000_000

	// FeeDenominatorBps is the basis-point denominator for fee rates.
	FeeDenominatorBps = 10_000

	// PriceScale is the fractional precision of computed prices.
	PriceScale = 18
)

var hundred = decimal.NewFromInt(100)

// CostToBuy returns the base-currency cost of taking assetOut units off the
// curve, rounded up so the payer never underpays.
func CostToBuy(virtualBase, virtualAsset, assetOut int64) (int64, error) {
	if virtualBase <= 0 || virtualAsset <= 0 {
		return 0, &domain.ArithmeticError{Op: "costToBuy", Msg: "non-positive reserves"}
	}
	if assetOut <= 0 || assetOut >= virtualAsset {
		return 0, &domain.ValidationError{Field: "assetOut", Msg: "must be positive and below the asset reserve"}
	}

	vb := decimal.NewFromInt(virtualBase)
	va := decimal.NewFromInt(virtualAsset)
	k := vb.Mul(va)

	newAsset := va.Sub(decimal.NewFromInt(assetOut))
	newBase := ceilDiv(k, newAsset)

	return toInt64(newBase.Sub(vb), "costToBuy")
}

// ProceedsFromSell returns the base currency released by returning assetIn
// units to the curve, rounded down so the seller never overreceives.
func ProceedsFromSell(virtualBase, virtualAsset, assetIn int64) (int64, error) {
	if virtualBase <= 0 || virtualAsset <= 0 {
		return 0, &domain.ArithmeticError{Op: "proceedsFromSell", Msg: "non-positive reserves"}
	}
	if assetIn <= 0 {
		return 0, &domain.ValidationError{Field: "assetIn", Msg: "must be positive"}
	}

	vb := decimal.NewFromInt(virtualBase)
	va := decimal.NewFromInt(virtualAsset)
	k := vb.Mul(va)

	newAsset := va.Add(decimal.NewFromInt(assetIn))
	newBase := floorDiv(k, newAsset)

	return toInt64(vb.Sub(newBase), "proceedsFromSell")
}

// AssetOutForBase returns how many asset units baseIn buys, rounded down so
// the receiver never overreceives.
func AssetOutForBase(virtualBase, virtualAsset, baseIn int64) (int64, error) {
	if virtualBase <= 0 || virtualAsset <= 0 {
		return 0, &domain.ArithmeticError{Op: "assetOutForBase", Msg: "non-positive reserves"}
	}
	if baseIn <= 0 {
		return 0, &domain.ValidationError{Field: "baseIn", Msg: "must be positive"}
	}

	vb := decimal.NewFromInt(virtualBase)
	va := decimal.NewFromInt(virtualAsset)
	k := vb.Mul(va)

	newBase := vb.Add(decimal.NewFromInt(baseIn))
	newAsset := floorDiv(k, newBase)

	return toInt64(va.Sub(newAsset), "assetOutForBase")
}

// PlatformFee returns ceil(amount * feeBps / 10000). Zero or negative
// inputs yield a zero fee.
func PlatformFee(amount, feeBps int64) int64 {
	if amount <= 0 || feeBps <= 0 {
		return 0
	}
	fee := ceilDiv(
		decimal.NewFromInt(amount).Mul(decimal.NewFromInt(feeBps)),
		decimal.NewFromInt(FeeDenominatorBps),
	)
	return fee.IntPart()
}

// CurrentPrice returns the instantaneous price in base units per asset unit
// at 18 fractional digits, or zero when the asset reserve is empty.
func CurrentPrice(virtualBase, virtualAsset int64) decimal.Decimal {
	if virtualAsset == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(virtualBase).
		DivRound(decimal.NewFromInt(virtualAsset), PriceScale)
}

// MarketCap values the full raw supply at the given per-unit price,
// expressed in whole base-currency units.
func MarketCap(totalSupply int64, price decimal.Decimal) decimal.Decimal {
	if totalSupply <= 0 {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromInt(totalSupply)).
		DivRound(decimal.NewFromInt(LamportsPerSol), 2)
}

// WithinSlippage reports whether actual falls within
// expected * (1 ± tolerancePct/100).
func WithinSlippage(expected, actual int64, tolerancePct decimal.Decimal) bool {
	if tolerancePct.IsNegative() {
		return false
	}
	exp := decimal.NewFromInt(expected)
	act := decimal.NewFromInt(actual)
	tol := tolerancePct.Div(hundred)

	lo := exp.Mul(decimal.NewFromInt(1).Sub(tol))
	hi := exp.Mul(decimal.NewFromInt(1).Add(tol))
	return act.GreaterThanOrEqual(lo) && act.LessThanOrEqual(hi)
}

// GraduationMode selects the system-of-record graduation rule.
type GraduationMode string

const (
	// GraduationByBaseThreshold graduates once accumulated real base
	// reserves reach a fixed lamport threshold. This matches the external
	// program and is the default.
	GraduationByBaseThreshold GraduationMode = "base_threshold"

	// GraduationByAssetDepleted graduates once real asset reserves are
	// fully depleted.
	GraduationByAssetDepleted GraduationMode = "asset_depleted"
)

// CurveRules applies the configured graduation rule uniformly to both the
// graduation predicate and curve progress.
type CurveRules struct {
	Mode              GraduationMode
	ThresholdLamports int64 // base_threshold mode
	InitialRealAsset  int64 // asset_depleted mode
}

// Graduated reports whether the curve has met its graduation condition.
func (r CurveRules) Graduated(realBase, realAsset int64) bool {
	if r.Mode == GraduationByAssetDepleted {
		return realAsset <= 0
	}
	return r.ThresholdLamports > 0 && realBase >= r.ThresholdLamports
}

// Progress returns curve completion in percent, clamped to [0, 100].
func (r CurveRules) Progress(realBase, realAsset int64) decimal.Decimal {
	var pct decimal.Decimal
	switch r.Mode {
	case GraduationByAssetDepleted:
		if r.InitialRealAsset <= 0 {
			return decimal.Zero
		}
		consumed := r.InitialRealAsset - realAsset
		if consumed < 0 {
			consumed = 0
		}
		pct = decimal.NewFromInt(consumed).Mul(hundred).
			DivRound(decimal.NewFromInt(r.InitialRealAsset), 2)
	default:
		if r.ThresholdLamports <= 0 {
			return decimal.Zero
		}
		if realBase < 0 {
			realBase = 0
		}
		pct = decimal.NewFromInt(realBase).Mul(hundred).
			DivRound(decimal.NewFromInt(r.ThresholdLamports), 2)
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// ceilDiv divides two non-negative integral decimals, rounding up.
func ceilDiv(num, den decimal.Decimal) decimal.Decimal {
	q, r := num.QuoRem(den, 0)
	if !r.IsZero() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}

// floorDiv divides two non-negative integral decimals, rounding down.
func floorDiv(num, den decimal.Decimal) decimal.Decimal {
	q, _ := num.QuoRem(den, 0)
	return q
}

func toInt64(d decimal.Decimal, op string) (int64, error) {
	bi := d.BigInt()
	if !bi.IsInt64() {
		return 0, &domain.ArithmeticError{Op: op, Msg: "result overflows int64"}
	}
	return bi.Int64(), nil
}
