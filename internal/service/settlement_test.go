package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"curve_go/internal/domain"
	"curve_go/internal/infra"
	"curve_go/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// recordingSink captures broadcast events for assertions.
type recordingSink struct {
	mu          sync.Mutex
	priceCalls  int
	tradeCalls  int
	graduations []string
}

func (r *recordingSink) PriceUpdate(_ string, _, _ decimal.Decimal, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priceCalls++
}

func (r *recordingSink) TradeExecuted(_ string, _ domain.TradeSide, _ int64, _ decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradeCalls++
}

func (r *recordingSink) Graduated(mint, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graduations = append(r.graduations, mint)
}

func (r *recordingSink) graduatedMints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.graduations...)
}

func newTestSettlement(t *testing.T) (*SettlementService, *storage.Storage, *recordingSink) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	sink := &recordingSink{}
	rules := CurveRules{
		Mode:              GraduationByBaseThreshold,
		ThresholdLamports: 69_000_000_000,
		InitialRealAsset:  793_100_000_000_000,
	}
	svc := NewSettlementService(store, sink, &infra.Metrics{}, NewMintLocks(), rules, 100)
	return svc, store, sink
}

func seedToken(t *testing.T, store *storage.Storage, mint string) *domain.Token {
	t.Helper()
	token := &domain.Token{
		MintAddress: mint,
		Name:        "Test Token",
		Symbol:      "TST",
		Decimals:    6,
		Reserve: domain.Reserve{
			VirtualBase:  30_000_000_000,
			VirtualAsset: 1_073_000_000_000_000,
			RealAsset:    793_100_000_000_000,
			TotalSupply:  1_000_000_000_000_000,
		},
		GraduationThreshold: 69_000_000_000,
		Status:              domain.TokenStatusActive,
	}
	if err := store.CreateToken(token); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return token
}

func TestSettle_Buy(t *testing.T) {
	svc, store, sink := newTestSettlement(t)
	seedToken(t, store, "mint1")

	assetOut := int64(34_000_000_000_000)
	cost, err := CostToBuy(30_000_000_000, 1_073_000_000_000_000, assetOut)
	if err != nil {
		t.Fatalf("CostToBuy: %v", err)
	}

	trade, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "sig1",
		MintAddress: "mint1",
		Wallet:      "buyer1",
		Side:        domain.SideBuy,
		BaseAmount:  cost,
		AssetAmount: assetOut,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if trade.PlatformFee != PlatformFee(cost, 100) {
		t.Errorf("PlatformFee = %d, want %d", trade.PlatformFee, PlatformFee(cost, 100))
	}

	token, err := store.TokenByMint("mint1")
	if err != nil {
		t.Fatalf("TokenByMint: %v", err)
	}
	if got := token.Reserve.VirtualBase; got != 30_000_000_000+cost {
		t.Errorf("VirtualBase = %d, want %d", got, 30_000_000_000+cost)
	}
	if got := token.Reserve.VirtualAsset; got != 1_073_000_000_000_000-assetOut {
		t.Errorf("VirtualAsset = %d", got)
	}
	if got := token.Reserve.RealBase; got != cost {
		t.Errorf("RealBase = %d, want %d", got, cost)
	}
	if token.Volume != cost {
		t.Errorf("Volume = %d, want %d", token.Volume, cost)
	}
	if token.CurrentPrice.IsZero() {
		t.Error("CurrentPrice should be set")
	}
	if token.LastTradeAt == nil {
		t.Error("LastTradeAt should be set")
	}
	if token.HoldersCount != 1 {
		t.Errorf("HoldersCount = %d, want 1", token.HoldersCount)
	}

	holding, err := store.HoldingFor("buyer1", "mint1")
	if err != nil {
		t.Fatalf("HoldingFor: %v", err)
	}
	if holding.Amount != assetOut {
		t.Errorf("holding amount = %d, want %d", holding.Amount, assetOut)
	}

	if sink.priceCalls != 1 || sink.tradeCalls != 1 {
		t.Errorf("expected 1 price and 1 trade broadcast, got %d/%d", sink.priceCalls, sink.tradeCalls)
	}
}

func TestSettle_DuplicateSignature(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	seedToken(t, store, "mint1")

	req := SettleRequest{
		Signature:   "dup",
		MintAddress: "mint1",
		Wallet:      "buyer1",
		Side:        domain.SideBuy,
		BaseAmount:  1_000_000_000,
		AssetAmount: 30_000_000_000_000,
	}
	if _, err := svc.Settle(context.Background(), req); err != nil {
		t.Fatalf("first Settle: %v", err)
	}

	before, _ := store.TokenByMint("mint1")

	_, err := svc.Settle(context.Background(), req)
	if !domain.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	after, _ := store.TokenByMint("mint1")
	if before.Reserve != after.Reserve {
		t.Error("duplicate settlement must not move reserves")
	}
	if after.Volume != before.Volume {
		t.Error("duplicate settlement must not add volume")
	}
}

func TestSettle_UnknownMint(t *testing.T) {
	svc, _, _ := newTestSettlement(t)

	_, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "sig1",
		MintAddress: "missing",
		Wallet:      "w1",
		Side:        domain.SideBuy,
		BaseAmount:  1,
		AssetAmount: 1,
	})
	if !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSettle_GraduatedTokenRejected(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	token := seedToken(t, store, "mint1")
	token.Status = domain.TokenStatusGraduated
	if err := store.SaveToken(token); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	_, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "sig1",
		MintAddress: "mint1",
		Wallet:      "w1",
		Side:        domain.SideBuy,
		BaseAmount:  1_000_000_000,
		AssetAmount: 30_000_000_000_000,
	})
	if !domain.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestSettle_SellWithoutBalance(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	seedToken(t, store, "mint1")

	_, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "sig1",
		MintAddress: "mint1",
		Wallet:      "stranger",
		Side:        domain.SideSell,
		BaseAmount:  1_000_000,
		AssetAmount: 1_000_000_000,
	})
	if !domain.IsInsufficientBalance(err) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	// The failed sell must leave no trace.
	if _, err := store.TradeBySignature("sig1"); !domain.IsNotFound(err) {
		t.Error("failed settlement must not persist a trade")
	}
	token, _ := store.TokenByMint("mint1")
	if token.Reserve.VirtualBase != 30_000_000_000 {
		t.Error("failed settlement must not move reserves")
	}
}

func TestSettle_BuyThenSellRoundTrip(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	seedToken(t, store, "mint1")

	buyAmount := int64(50_000_000_000_000)
	cost, _ := CostToBuy(30_000_000_000, 1_073_000_000_000_000, buyAmount)
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "buy1",
		MintAddress: "mint1",
		Wallet:      "w1",
		Side:        domain.SideBuy,
		BaseAmount:  cost,
		AssetAmount: buyAmount,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Sell half.
	token, _ := store.TokenByMint("mint1")
	half := buyAmount / 2
	proceeds, _ := ProceedsFromSell(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, half)
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "sell1",
		MintAddress: "mint1",
		Wallet:      "w1",
		Side:        domain.SideSell,
		BaseAmount:  proceeds,
		AssetAmount: half,
	}); err != nil {
		t.Fatalf("sell half: %v", err)
	}

	holding, err := store.HoldingFor("w1", "mint1")
	if err != nil {
		t.Fatalf("HoldingFor: %v", err)
	}
	if holding.Amount != buyAmount-half {
		t.Errorf("holding = %d, want %d", holding.Amount, buyAmount-half)
	}

	// Sell the rest; the position row disappears.
	token, _ = store.TokenByMint("mint1")
	proceeds, _ = ProceedsFromSell(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, holding.Amount)
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "sell2",
		MintAddress: "mint1",
		Wallet:      "w1",
		Side:        domain.SideSell,
		BaseAmount:  proceeds,
		AssetAmount: holding.Amount,
	}); err != nil {
		t.Fatalf("sell rest: %v", err)
	}
	if _, err := store.HoldingFor("w1", "mint1"); !domain.IsNotFound(err) {
		t.Errorf("emptied position should be removed, got %v", err)
	}
}

func TestSettle_WeightedAverageCost(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	seedToken(t, store, "mint1")

	// Two buys at different prices blend the average cost.
	amount := int64(100_000_000_000_000)
	cost1, _ := CostToBuy(30_000_000_000, 1_073_000_000_000_000, amount)
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature: "b1", MintAddress: "mint1", Wallet: "w1",
		Side: domain.SideBuy, BaseAmount: cost1, AssetAmount: amount,
	}); err != nil {
		t.Fatalf("first buy: %v", err)
	}

	token, _ := store.TokenByMint("mint1")
	cost2, _ := CostToBuy(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, amount)
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature: "b2", MintAddress: "mint1", Wallet: "w1",
		Side: domain.SideBuy, BaseAmount: cost2, AssetAmount: amount,
	}); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	holding, _ := store.HoldingFor("w1", "mint1")
	if holding.Amount != 2*amount {
		t.Fatalf("holding = %d, want %d", holding.Amount, 2*amount)
	}

	p1 := decimal.NewFromInt(cost1).DivRound(decimal.NewFromInt(amount), PriceScale)
	p2 := decimal.NewFromInt(cost2).DivRound(decimal.NewFromInt(amount), PriceScale)
	want := p1.Mul(decimal.NewFromInt(amount)).
		Add(p2.Mul(decimal.NewFromInt(amount))).
		DivRound(decimal.NewFromInt(2*amount), PriceScale)
	if !holding.AveragePrice.Equal(want) {
		t.Errorf("AveragePrice = %s, want %s", holding.AveragePrice, want)
	}
	if !holding.AveragePrice.GreaterThan(p1) || !holding.AveragePrice.LessThan(p2) {
		t.Errorf("average %s should lie between %s and %s", holding.AveragePrice, p1, p2)
	}
}

func TestSettle_Graduation(t *testing.T) {
	svc, store, sink := newTestSettlement(t)
	seedToken(t, store, "mint1")

	// One enormous buy pushes real base reserves past the threshold.
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature:   "big",
		MintAddress: "mint1",
		Wallet:      "whale",
		Side:        domain.SideBuy,
		BaseAmount:  69_000_000_000,
		AssetAmount: 700_000_000_000_000,
	}); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	token, _ := store.TokenByMint("mint1")
	if token.Status != domain.TokenStatusGraduated {
		t.Fatalf("Status = %s, want GRADUATED", token.Status)
	}
	if token.GraduatedAt == nil {
		t.Error("GraduatedAt should be set")
	}
	if !token.ProgressPct.Equal(decimal.NewFromInt(100)) {
		t.Errorf("ProgressPct = %s, want 100", token.ProgressPct)
	}
	if mints := sink.graduatedMints(); len(mints) != 1 || mints[0] != "mint1" {
		t.Errorf("graduation broadcast = %v", mints)
	}

	// The curve is closed from here on.
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature: "after", MintAddress: "mint1", Wallet: "w2",
		Side: domain.SideBuy, BaseAmount: 1_000_000, AssetAmount: 1_000_000,
	}); !domain.IsValidation(err) {
		t.Errorf("expected ValidationError after graduation, got %v", err)
	}
}

func TestSettle_SlippageRejected(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	seedToken(t, store, "mint1")

	assetOut := int64(34_000_000_000_000)
	cost, _ := CostToBuy(30_000_000_000, 1_073_000_000_000_000, assetOut)

	// Observed cost 10% above the quote with a 1% tolerance.
	_, err := svc.Settle(context.Background(), SettleRequest{
		Signature:            "sig1",
		MintAddress:          "mint1",
		Wallet:               "w1",
		Side:                 domain.SideBuy,
		BaseAmount:           cost + cost/10,
		AssetAmount:          assetOut,
		SlippageTolerancePct: decimal.NewFromInt(1),
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// The same trade within tolerance settles.
	if _, err := svc.Settle(context.Background(), SettleRequest{
		Signature:            "sig2",
		MintAddress:          "mint1",
		Wallet:               "w1",
		Side:                 domain.SideBuy,
		BaseAmount:           cost,
		AssetAmount:          assetOut,
		SlippageTolerancePct: decimal.NewFromInt(1),
	}); err != nil {
		t.Fatalf("Settle within tolerance: %v", err)
	}
}

func TestSettle_Validation(t *testing.T) {
	svc, _, _ := newTestSettlement(t)

	base := SettleRequest{
		Signature:   "sig",
		MintAddress: "mint1",
		Wallet:      "w1",
		Side:        domain.SideBuy,
		BaseAmount:  1,
		AssetAmount: 1,
	}

	cases := []struct {
		name   string
		mutate func(*SettleRequest)
	}{
		{"missing signature", func(r *SettleRequest) { r.Signature = "" }},
		{"missing mint", func(r *SettleRequest) { r.MintAddress = "" }},
		{"missing wallet", func(r *SettleRequest) { r.Wallet = "" }},
		{"bad side", func(r *SettleRequest) { r.Side = "HOLD" }},
		{"zero base", func(r *SettleRequest) { r.BaseAmount = 0 }},
		{"negative asset", func(r *SettleRequest) { r.AssetAmount = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if _, err := svc.Settle(context.Background(), req); !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	svc, store, _ := newTestSettlement(t)
	seedToken(t, store, "mint1")

	assetAmount := int64(34_000_000_000_000)

	buy, err := svc.Quote(context.Background(), "mint1", domain.SideBuy, assetAmount)
	if err != nil {
		t.Fatalf("Quote buy: %v", err)
	}
	wantCost, _ := CostToBuy(30_000_000_000, 1_073_000_000_000_000, assetAmount)
	if buy.BaseAmount != wantCost {
		t.Errorf("buy quote = %d, want %d", buy.BaseAmount, wantCost)
	}
	if buy.PlatformFee != PlatformFee(wantCost, 100) {
		t.Errorf("buy fee = %d", buy.PlatformFee)
	}

	sell, err := svc.Quote(context.Background(), "mint1", domain.SideSell, assetAmount)
	if err != nil {
		t.Fatalf("Quote sell: %v", err)
	}
	wantProceeds, _ := ProceedsFromSell(30_000_000_000, 1_073_000_000_000_000, assetAmount)
	if sell.BaseAmount != wantProceeds {
		t.Errorf("sell quote = %d, want %d", sell.BaseAmount, wantProceeds)
	}
	if sell.BaseAmount >= buy.BaseAmount {
		t.Error("selling must never quote above buying")
	}

	if _, err := svc.Quote(context.Background(), "missing", domain.SideBuy, 1); !domain.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
