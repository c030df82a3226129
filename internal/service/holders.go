package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"curve_go/internal/domain"
	"curve_go/internal/infra"
	"curve_go/internal/infra/storage"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"
)

// HolderService rebuilds per-token holder snapshots from chain token
// accounts. Each cycle replaces the snapshot wholesale; only FirstSeenAt
// survives for wallets that kept a balance.
type HolderService struct {
	store   *storage.Storage
	reader  domain.ChainReader
	metrics *infra.Metrics
	pool    pond.Pool
}

// NewHolderService creates the holder aggregation service.
func NewHolderService(store *storage.Storage, reader domain.ChainReader, metrics *infra.Metrics, maxParallel int) *HolderService {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &HolderService{
		store:   store,
		reader:  reader,
		metrics: metrics,
		pool:    pond.NewPool(maxParallel, pond.WithQueueSize(256)),
	}
}

// AggregateAll rebuilds holder snapshots for every token still on the curve.
func (s *HolderService) AggregateAll(ctx context.Context) error {
	tokens, err := s.store.TokensByStatus(domain.TokenStatusActive)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		s.metrics.RecordHolderCycle()
		return nil
	}

	start := time.Now()
	group := s.pool.NewGroupContext(ctx)
	for i := range tokens {
		token := tokens[i]
		group.Submit(func() {
			if err := s.AggregateToken(ctx, token.MintAddress); err != nil {
				s.metrics.RecordError()
				slog.Warn("Holder aggregation failed",
					slog.String("mint", token.MintAddress), slog.Any("error", err))
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	s.metrics.RecordHolderCycle()
	slog.Info("👥 Holder aggregation cycle finished",
		slog.Int("tokens", len(tokens)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// AggregateToken rebuilds one token's holder snapshot. Balances from several
// token accounts owned by the same wallet are summed; zero balances are
// dropped; percentages are relative to total supply and clamped at 100.
func (s *HolderService) AggregateToken(ctx context.Context, mint string) error {
	token, err := s.store.TokenByMint(mint)
	if err != nil {
		return err
	}

	accounts, err := s.reader.TokenAccounts(ctx, mint)
	if err != nil {
		return err
	}

	byWallet := make(map[string]int64, len(accounts))
	for _, acc := range accounts {
		if acc.Amount == 0 {
			continue
		}
		byWallet[acc.Owner] += clampInt64(acc.Amount)
	}

	holders := make([]domain.Holder, 0, len(byWallet))
	supply := decimal.NewFromInt(token.Reserve.TotalSupply)
	for wallet, balance := range byWallet {
		holders = append(holders, domain.Holder{
			Wallet:     wallet,
			Balance:    balance,
			Percentage: holderPercentage(balance, supply),
		})
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Balance > holders[j].Balance })

	return s.store.Transaction(func(tx *storage.Storage) error {
		if err := tx.ReplaceHolders(mint, holders); err != nil {
			return err
		}
		token, err := tx.TokenByMint(mint)
		if err != nil {
			return err
		}
		token.HoldersCount = len(holders)
		return tx.SaveToken(token)
	})
}

// Stop drains the worker pool.
func (s *HolderService) Stop() {
	s.pool.StopAndWait()
}

func holderPercentage(balance int64, supply decimal.Decimal) decimal.Decimal {
	if supply.IsZero() {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(balance).Mul(hundred).DivRound(supply, 2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
