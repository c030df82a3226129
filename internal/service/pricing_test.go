package service

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

const (
	testVirtualBase  = int64(30_000_000_000)
	testVirtualAsset = int64(1_073_000_000_000_000)
)

func TestCostToBuy_ExactCeil(t *testing.T) {
	assetOut := int64(1_000_000_000)

	got, err := CostToBuy(testVirtualBase, testVirtualAsset, assetOut)
	if err != nil {
		t.Fatalf("CostToBuy: %v", err)
	}

	// Reference: ceil(k / (virtualAsset - assetOut)) - virtualBase, exact.
	k := new(big.Int).Mul(big.NewInt(testVirtualBase), big.NewInt(testVirtualAsset))
	newAsset := big.NewInt(testVirtualAsset - assetOut)
	q, r := new(big.Int).QuoRem(k, newAsset, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	want := new(big.Int).Sub(q, big.NewInt(testVirtualBase)).Int64()

	if got != want {
		t.Errorf("CostToBuy = %d, want %d", got, want)
	}
}

func TestCostToBuy_Validation(t *testing.T) {
	cases := []struct {
		name     string
		vb, va   int64
		assetOut int64
	}{
		{"zero amount", testVirtualBase, testVirtualAsset, 0},
		{"negative amount", testVirtualBase, testVirtualAsset, -5},
		{"drains reserve", testVirtualBase, testVirtualAsset, testVirtualAsset},
		{"exceeds reserve", testVirtualBase, testVirtualAsset, testVirtualAsset + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CostToBuy(tc.vb, tc.va, tc.assetOut); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := CostToBuy(0, testVirtualAsset, 1); err == nil {
		t.Error("zero base reserve should fail")
	}
}

func TestAssetOutForBase_RoundTrip(t *testing.T) {
	outs := []int64{1, 1_000_000, 1_000_000_000, 50_000_000_000_000, 900_000_000_000_000}

	for _, assetOut := range outs {
		baseIn, err := CostToBuy(testVirtualBase, testVirtualAsset, assetOut)
		if err != nil {
			t.Fatalf("CostToBuy(%d): %v", assetOut, err)
		}
		got, err := AssetOutForBase(testVirtualBase, testVirtualAsset, baseIn)
		if err != nil {
			t.Fatalf("AssetOutForBase: %v", err)
		}

		// Paying the rounded-up cost must buy at least the requested amount,
		// and at most one lamport's worth of extra units.
		if got < assetOut {
			t.Errorf("assetOut=%d: round trip returned %d, buyer shorted", assetOut, got)
		}
		lamportWorth := testVirtualAsset/testVirtualBase + 1
		if got-assetOut > lamportWorth {
			t.Errorf("assetOut=%d: round trip returned %d, drift %d exceeds %d",
				assetOut, got, got-assetOut, lamportWorth)
		}
	}
}

func TestRoundTrip_NoProfitAfterFees(t *testing.T) {
	const feeBps = 100
	n := int64(5_000_000_000)

	cost, err := CostToBuy(testVirtualBase, testVirtualAsset, n)
	if err != nil {
		t.Fatalf("CostToBuy: %v", err)
	}
	buyFee := PlatformFee(cost, feeBps)

	// Reserves after the buy.
	vb := testVirtualBase + cost
	va := testVirtualAsset - n

	proceeds, err := ProceedsFromSell(vb, va, n)
	if err != nil {
		t.Fatalf("ProceedsFromSell: %v", err)
	}
	sellFee := PlatformFee(proceeds, feeBps)

	net := (proceeds - sellFee) - (cost + buyFee)
	if net >= 0 {
		t.Errorf("round trip yielded non-negative net %d (cost=%d buyFee=%d proceeds=%d sellFee=%d)",
			net, cost, buyFee, proceeds, sellFee)
	}

	// Even before fees the curve never pays out more than it took in.
	if proceeds > cost {
		t.Errorf("proceeds %d exceed cost %d without fees", proceeds, cost)
	}
}

func TestPlatformFee(t *testing.T) {
	cases := []struct {
		amount, feeBps, want int64
	}{
		{10_000, 100, 100},
		{10_001, 100, 101}, // ceil in the platform's favor
		{1, 100, 1},
		{0, 100, 0},
		{-50, 100, 0},
		{10_000, 0, 0},
	}
	for _, tc := range cases {
		if got := PlatformFee(tc.amount, tc.feeBps); got != tc.want {
			t.Errorf("PlatformFee(%d, %d) = %d, want %d", tc.amount, tc.feeBps, got, tc.want)
		}
	}
}

func TestCurrentPrice(t *testing.T) {
	price := CurrentPrice(testVirtualBase, testVirtualAsset)
	want := decimal.NewFromInt(testVirtualBase).
		DivRound(decimal.NewFromInt(testVirtualAsset), PriceScale)
	if !price.Equal(want) {
		t.Errorf("CurrentPrice = %s, want %s", price, want)
	}

	if !CurrentPrice(testVirtualBase, 0).IsZero() {
		t.Error("price with zero asset reserve should be zero")
	}
}

func TestMarketCap(t *testing.T) {
	price := decimal.RequireFromString("0.000000030")
	mc := MarketCap(1_000_000_000_000_000, price)
	// 1e15 raw units * 3e-8 lamports / 1e9 lamports-per-sol = 30000 SOL
	if !mc.Equal(decimal.NewFromInt(30_000)) {
		t.Errorf("MarketCap = %s, want 30000", mc)
	}
	if !MarketCap(0, price).IsZero() {
		t.Error("zero supply should have zero market cap")
	}
}

func TestCurveRules_BaseThreshold(t *testing.T) {
	rules := CurveRules{Mode: GraduationByBaseThreshold, ThresholdLamports: 69_000_000_000}

	if rules.Graduated(68_999_999_999, 0) {
		t.Error("below threshold should not graduate")
	}
	if !rules.Graduated(69_000_000_000, 1) {
		t.Error("at threshold should graduate")
	}

	pct := rules.Progress(34_500_000_000, 0)
	if !pct.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Progress = %s, want 50", pct)
	}
	if !rules.Progress(100_000_000_000, 0).Equal(decimal.NewFromInt(100)) {
		t.Error("progress should clamp at 100")
	}
	if !rules.Progress(-5, 0).IsZero() {
		t.Error("negative reserves should report zero progress")
	}
}

func TestCurveRules_AssetDepleted(t *testing.T) {
	rules := CurveRules{Mode: GraduationByAssetDepleted, InitialRealAsset: 793_100_000_000_000}

	if rules.Graduated(0, 1) {
		t.Error("remaining real asset should not graduate")
	}
	if !rules.Graduated(0, 0) {
		t.Error("depleted real asset should graduate")
	}

	half := int64(793_100_000_000_000 / 2)
	pct := rules.Progress(0, half)
	if !pct.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Progress = %s, want 50", pct)
	}
	if !rules.Progress(0, 793_100_000_000_000).IsZero() {
		t.Error("untouched reserve should report zero progress")
	}
}

func TestWithinSlippage(t *testing.T) {
	tol := decimal.NewFromInt(5) // 5%

	cases := []struct {
		name             string
		expected, actual int64
		want             bool
	}{
		{"exact", 1000, 1000, true},
		{"upper bound", 1000, 1050, true},
		{"lower bound", 1000, 950, true},
		{"above", 1000, 1051, false},
		{"below", 1000, 949, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WithinSlippage(tc.expected, tc.actual, tol); got != tc.want {
				t.Errorf("WithinSlippage(%d, %d) = %v, want %v", tc.expected, tc.actual, got, tc.want)
			}
		})
	}

	if WithinSlippage(1000, 1000, decimal.NewFromInt(-1)) {
		t.Error("negative tolerance should never pass")
	}
}
