package service

import (
	"context"
	"log/slog"
	"time"

	"curve_go/internal/domain"
	"curve_go/internal/infra"
	"curve_go/internal/infra/storage"
	"curve_go/pkg/safe"

	"github.com/shopspring/decimal"
)

// SettleRequest describes one trade already finalized by the external ledger.
// BaseAmount is the base-currency movement on the curve side; the platform
// fee is charged on top of it. AssetAmount is the asset movement in raw
// units. Slippage protection is opt-in: a positive SlippageTolerancePct
// re-quotes the trade against current reserves and rejects divergence.
type SettleRequest struct {
	Signature            string
	MintAddress          string
	Wallet               string
	Side                 domain.TradeSide
	BaseAmount           int64
	AssetAmount          int64
	SlippageTolerancePct decimal.Decimal
}

// QuoteResult is an indicative quote against current reserves.
type QuoteResult struct {
	Side         domain.TradeSide `json:"side"`
	AssetAmount  int64            `json:"asset_amount"`
	BaseAmount   int64            `json:"base_amount"`
	PlatformFee  int64            `json:"platform_fee"`
	PricePerUnit decimal.Decimal  `json:"price_per_unit"`
}

// SettlementService records trades against the bonding curve. It never
// executes anything on chain; it validates the observed amounts, mutates the
// local reserve mirror, and persists the trade atomically. Requests for the
// same mint are serialized; reconciliation shares the same lock table.
type SettlementService struct {
	store   *storage.Storage
	sink    domain.NotificationSink
	metrics *infra.Metrics
	locks   *MintLocks
	rules   CurveRules
	feeBps  int64
}

// NewSettlementService wires the settlement path. locks must be the same
// table handed to the reconciler.
func NewSettlementService(store *storage.Storage, sink domain.NotificationSink, metrics *infra.Metrics, locks *MintLocks, rules CurveRules, feeBps int64) *SettlementService {
	return &SettlementService{
		store:   store,
		sink:    sink,
		metrics: metrics,
		locks:   locks,
		rules:   rules,
		feeBps:  feeBps,
	}
}

// Settle validates and records one trade. Duplicate signatures are rejected
// with ConflictError and leave no side effects; all writes of one settlement
// commit or roll back together.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*domain.Trade, error) {
	start := time.Now()

	if err := validateSettleRequest(req); err != nil {
		return nil, err
	}

	mu := s.locks.forMint(req.MintAddress)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		trade         *domain.Trade
		token         *domain.Token
		justGraduated bool
	)
	err := s.store.Transaction(func(tx *storage.Storage) error {
		if _, err := tx.TradeBySignature(req.Signature); err == nil {
			return &domain.ConflictError{Resource: "trade", Key: req.Signature}
		} else if !domain.IsNotFound(err) {
			return err
		}

		var err error
		token, err = tx.TokenByMint(req.MintAddress)
		if err != nil {
			return err
		}
		if !token.Active() {
			return &domain.ValidationError{Field: "mint", Msg: "token no longer trades on the curve"}
		}

		if req.SlippageTolerancePct.IsPositive() {
			if err := s.checkSlippage(token, req); err != nil {
				return err
			}
		}

		fee := PlatformFee(req.BaseAmount, s.feeBps)
		if err := applyTrade(token, req); err != nil {
			return err
		}

		price := decimal.NewFromInt(req.BaseAmount).
			DivRound(decimal.NewFromInt(req.AssetAmount), PriceScale)

		trade = &domain.Trade{
			Signature:    req.Signature,
			MintAddress:  req.MintAddress,
			Wallet:       req.Wallet,
			Side:         req.Side,
			BaseAmount:   req.BaseAmount,
			AssetAmount:  req.AssetAmount,
			PricePerUnit: price,
			PlatformFee:  fee,
			SettledAt:    time.Now(),
		}
		if err := tx.CreateTrade(trade); err != nil {
			return err
		}

		if err := s.applyHolding(tx, req, price); err != nil {
			return err
		}
		if count, err := tx.HoldingCount(req.MintAddress); err == nil {
			token.HoldersCount = count
		}

		justGraduated = s.refreshStats(token, req)
		return tx.SaveToken(token)
	})
	if err != nil {
		s.metrics.RecordError()
		return nil, err
	}

	s.metrics.RecordSettlement(time.Since(start).Nanoseconds())
	s.broadcast(token, trade, justGraduated)
	return trade, nil
}

// Quote prices a prospective trade of assetAmount raw units against current
// reserves without touching any state.
func (s *SettlementService) Quote(ctx context.Context, mint string, side domain.TradeSide, assetAmount int64) (*QuoteResult, error) {
	if !side.Valid() {
		return nil, &domain.ValidationError{Field: "side", Msg: "must be BUY or SELL"}
	}
	if assetAmount <= 0 {
		return nil, &domain.ValidationError{Field: "asset_amount", Msg: "must be positive"}
	}

	token, err := s.store.TokenByMint(mint)
	if err != nil {
		return nil, err
	}
	if !token.Active() {
		return nil, &domain.ValidationError{Field: "mint", Msg: "token no longer trades on the curve"}
	}

	var base int64
	if side == domain.SideBuy {
		base, err = CostToBuy(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, assetAmount)
	} else {
		base, err = ProceedsFromSell(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, assetAmount)
	}
	if err != nil {
		return nil, err
	}

	return &QuoteResult{
		Side:        side,
		AssetAmount: assetAmount,
		BaseAmount:  base,
		PlatformFee: PlatformFee(base, s.feeBps),
		PricePerUnit: decimal.NewFromInt(base).
			DivRound(decimal.NewFromInt(assetAmount), PriceScale),
	}, nil
}

func validateSettleRequest(req SettleRequest) error {
	switch {
	case req.Signature == "":
		return &domain.ValidationError{Field: "signature", Msg: "required"}
	case req.MintAddress == "":
		return &domain.ValidationError{Field: "mint_address", Msg: "required"}
	case req.Wallet == "":
		return &domain.ValidationError{Field: "wallet", Msg: "required"}
	case !req.Side.Valid():
		return &domain.ValidationError{Field: "side", Msg: "must be BUY or SELL"}
	case req.BaseAmount <= 0:
		return &domain.ValidationError{Field: "base_amount", Msg: "must be positive"}
	case req.AssetAmount <= 0:
		return &domain.ValidationError{Field: "asset_amount", Msg: "must be positive"}
	}
	return nil
}

// checkSlippage re-quotes the trade against current reserves and verifies
// the observed base amount stays within the caller's tolerance.
func (s *SettlementService) checkSlippage(token *domain.Token, req SettleRequest) error {
	var expected int64
	var err error
	if req.Side == domain.SideBuy {
		expected, err = CostToBuy(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, req.AssetAmount)
	} else {
		expected, err = ProceedsFromSell(token.Reserve.VirtualBase, token.Reserve.VirtualAsset, req.AssetAmount)
	}
	if err != nil {
		return err
	}
	if !WithinSlippage(expected, req.BaseAmount, req.SlippageTolerancePct) {
		return &domain.ValidationError{Field: "base_amount", Msg: "outside slippage tolerance"}
	}
	return nil
}

// applyTrade mutates the token's reserve mirror. BaseAmount is the exact
// curve-side movement; the platform fee is charged on top and never enters
// the reserves. Real base reserves clamp at zero because the mirror may lag
// the ledger between reconciliation cycles.
func applyTrade(token *domain.Token, req SettleRequest) error {
	r := &token.Reserve

	if req.Side == domain.SideBuy {
		if req.AssetAmount >= r.VirtualAsset {
			return &domain.ValidationError{Field: "asset_amount", Msg: "exceeds available asset reserve"}
		}
		vb, ok := safe.Add(r.VirtualBase, req.BaseAmount)
		if !ok {
			return &domain.ArithmeticError{Op: "settle", Msg: "virtual base overflow"}
		}
		rb, ok := safe.Add(r.RealBase, req.BaseAmount)
		if !ok {
			return &domain.ArithmeticError{Op: "settle", Msg: "real base overflow"}
		}
		r.VirtualBase = vb
		r.RealBase = rb
		r.VirtualAsset -= req.AssetAmount
		r.RealAsset -= req.AssetAmount
		if r.RealAsset < 0 {
			r.RealAsset = 0
		}
		return nil
	}

	if req.BaseAmount >= r.VirtualBase {
		return &domain.ValidationError{Field: "base_amount", Msg: "exceeds available base reserve"}
	}
	va, ok := safe.Add(r.VirtualAsset, req.AssetAmount)
	if !ok {
		return &domain.ArithmeticError{Op: "settle", Msg: "virtual asset overflow"}
	}
	ra, ok := safe.Add(r.RealAsset, req.AssetAmount)
	if !ok {
		return &domain.ArithmeticError{Op: "settle", Msg: "real asset overflow"}
	}
	r.VirtualAsset = va
	r.RealAsset = ra
	r.VirtualBase -= req.BaseAmount
	r.RealBase -= req.BaseAmount
	if r.RealBase < 0 {
		r.RealBase = 0
	}
	return nil
}

// applyHolding updates the wallet's position. Buys blend the average cost;
// sells only decrement and leave the average untouched. An emptied position
// is removed.
func (s *SettlementService) applyHolding(tx *storage.Storage, req SettleRequest, price decimal.Decimal) error {
	holding, err := tx.HoldingFor(req.Wallet, req.MintAddress)
	if err != nil && !domain.IsNotFound(err) {
		return err
	}

	if req.Side == domain.SideBuy {
		if holding == nil || domain.IsNotFound(err) {
			holding = &domain.Holding{
				Wallet:       req.Wallet,
				MintAddress:  req.MintAddress,
				Amount:       req.AssetAmount,
				AveragePrice: price,
			}
			return tx.SaveHolding(holding)
		}
		newAmount, ok := safe.Add(holding.Amount, req.AssetAmount)
		if !ok {
			return &domain.ArithmeticError{Op: "settle", Msg: "holding amount overflow"}
		}
		oldCost := holding.AveragePrice.Mul(decimal.NewFromInt(holding.Amount))
		newCost := price.Mul(decimal.NewFromInt(req.AssetAmount))
		holding.AveragePrice = oldCost.Add(newCost).
			DivRound(decimal.NewFromInt(newAmount), PriceScale)
		holding.Amount = newAmount
		return tx.SaveHolding(holding)
	}

	if holding == nil || domain.IsNotFound(err) || holding.Amount < req.AssetAmount {
		have := int64(0)
		if holding != nil {
			have = holding.Amount
		}
		return &domain.InsufficientBalanceError{
			Wallet: req.Wallet,
			Mint:   req.MintAddress,
			Need:   req.AssetAmount,
			Have:   have,
		}
	}
	holding.Amount -= req.AssetAmount
	if holding.Amount == 0 {
		return tx.DeleteHolding(req.Wallet, req.MintAddress)
	}
	return tx.SaveHolding(holding)
}

// refreshStats recomputes derived token fields after a trade and applies the
// one-way graduation transition. Returns true when this trade graduated the
// token.
func (s *SettlementService) refreshStats(token *domain.Token, req SettleRequest) bool {
	r := token.Reserve
	token.CurrentPrice = CurrentPrice(r.VirtualBase, r.VirtualAsset)
	token.MarketCap = MarketCap(r.TotalSupply, token.CurrentPrice)
	token.ProgressPct = s.rules.Progress(r.RealBase, r.RealAsset)

	if vol, ok := safe.Add(token.Volume, req.BaseAmount); ok {
		token.Volume = vol
	}
	now := time.Now()
	token.LastTradeAt = &now

	if token.Status == domain.TokenStatusActive && s.rules.Graduated(r.RealBase, r.RealAsset) {
		token.Status = domain.TokenStatusGraduated
		token.GraduatedAt = &now
		token.ProgressPct = hundred
		return true
	}
	return false
}

func (s *SettlementService) broadcast(token *domain.Token, trade *domain.Trade, graduated bool) {
	s.sink.PriceUpdate(token.MintAddress, token.CurrentPrice, token.MarketCap, token.Volume)
	s.sink.TradeExecuted(token.Symbol, trade.Side, trade.AssetAmount, trade.PricePerUnit)
	if graduated {
		slog.Info("🎓 Token graduated",
			slog.String("mint", token.MintAddress), slog.String("symbol", token.Symbol))
		s.sink.Graduated(token.MintAddress, token.Name, token.Symbol)
	}
}
