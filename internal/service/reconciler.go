package service

import (
	"context"
	"log/slog"
	"time"

	"curve_go/internal/domain"
	"curve_go/internal/infra"
	"curve_go/internal/infra/chain"
	"curve_go/internal/infra/storage"

	"github.com/alitto/pond/v2"
)

// ReconcilerService periodically overwrites the local reserve mirror with
// on-chain truth. The chain always wins: optimistic settlement deltas are
// discarded in favor of the decoded account state. One token failing never
// stops the cycle.
type ReconcilerService struct {
	store   *storage.Storage
	reader  domain.ChainReader
	sink    domain.NotificationSink
	metrics *infra.Metrics
	locks   *MintLocks
	rules   CurveRules
	pool    pond.Pool
}

// NewReconcilerService wires the reconciliation path. locks must be the same
// table handed to settlement.
func NewReconcilerService(store *storage.Storage, reader domain.ChainReader, sink domain.NotificationSink, metrics *infra.Metrics, locks *MintLocks, rules CurveRules, maxParallel int) *ReconcilerService {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &ReconcilerService{
		store:   store,
		reader:  reader,
		sink:    sink,
		metrics: metrics,
		locks:   locks,
		rules:   rules,
		pool:    pond.NewPool(maxParallel, pond.WithQueueSize(256)),
	}
}

// SyncAll reconciles every token that still trades on the curve. Graduated
// and inactive tokens are skipped; their curve state is frozen.
func (s *ReconcilerService) SyncAll(ctx context.Context) error {
	tokens, err := s.store.TokensByStatus(domain.TokenStatusActive)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		s.metrics.RecordSyncCycle()
		return nil
	}

	start := time.Now()
	group := s.pool.NewGroupContext(ctx)
	for i := range tokens {
		mint := tokens[i].MintAddress
		group.Submit(func() {
			if err := s.SyncToken(ctx, mint); err != nil {
				s.metrics.RecordError()
				slog.Warn("Token reconciliation failed",
					slog.String("mint", mint), slog.Any("error", err))
			} else {
				s.metrics.RecordTokenSynced()
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	s.metrics.RecordSyncCycle()
	slog.Info("🔄 Reconciliation cycle finished",
		slog.Int("tokens", len(tokens)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// SyncToken fetches and decodes one curve account, then overwrites the local
// mirror under the mint lock. Graduation is one-way: a token already marked
// GRADUATED never reverts even if the chain flag reads false.
func (s *ReconcilerService) SyncToken(ctx context.Context, mint string) error {
	raw, err := s.reader.FetchCurveAccount(ctx, mint)
	if err != nil {
		return err
	}
	state, err := chain.DecodeCurveAccount(raw)
	if err != nil {
		return err
	}

	mu := s.locks.forMint(mint)
	mu.Lock()
	defer mu.Unlock()

	var (
		token         *domain.Token
		justGraduated bool
		skipped       bool
	)
	err = s.store.Transaction(func(tx *storage.Storage) error {
		var err error
		token, err = tx.TokenByMint(mint)
		if err != nil {
			return err
		}
		if token.Status == domain.TokenStatusInactive {
			skipped = true
			return nil
		}

		token.Reserve = domain.Reserve{
			VirtualBase:  clampInt64(state.VirtualBaseReserves),
			VirtualAsset: clampInt64(state.VirtualAssetReserves),
			RealBase:     clampInt64(state.RealBaseReserves),
			RealAsset:    clampInt64(state.RealAssetReserves),
			TotalSupply:  clampInt64(state.TotalSupply),
		}
		token.CurrentPrice = CurrentPrice(token.Reserve.VirtualBase, token.Reserve.VirtualAsset)
		token.MarketCap = MarketCap(token.Reserve.TotalSupply, token.CurrentPrice)
		token.ProgressPct = s.rules.Progress(token.Reserve.RealBase, token.Reserve.RealAsset)

		if token.Status == domain.TokenStatusActive &&
			(state.Graduated || s.rules.Graduated(token.Reserve.RealBase, token.Reserve.RealAsset)) {
			now := time.Now()
			token.Status = domain.TokenStatusGraduated
			token.GraduatedAt = &now
			token.ProgressPct = hundred
			justGraduated = true
		}
		return tx.SaveToken(token)
	})
	if err != nil {
		return err
	}
	if skipped {
		return nil
	}

	s.sink.PriceUpdate(token.MintAddress, token.CurrentPrice, token.MarketCap, token.Volume)
	if justGraduated {
		slog.Info("🎓 Token graduated",
			slog.String("mint", token.MintAddress), slog.String("symbol", token.Symbol))
		s.sink.Graduated(token.MintAddress, token.Name, token.Symbol)
	}
	return nil
}

// Stop drains the worker pool.
func (s *ReconcilerService) Stop() {
	s.pool.StopAndWait()
}

// clampInt64 converts a chain u64 into int64, saturating instead of
// wrapping negative.
func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
