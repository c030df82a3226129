package app

import (
	"log/slog"

	"curve_go/internal/infra"
	"curve_go/internal/infra/chain"
	"curve_go/internal/infra/storage"
	"curve_go/internal/infra/ws"
	"curve_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.IconDownloader
	Metrics    *infra.Metrics
	Chain      *chain.Client
	Hub        *ws.Hub

	Tokens     *service.TokenService
	Settlement *service.SettlementService
	Reconciler *service.ReconcilerService
	Holders    *service.HolderService
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, DB, chain client,
// services).
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Curve Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage("data/curve.db")
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Initialize Icon Downloader
	downloader, err := infra.NewIconDownloader("assets/icons")
	if err != nil {
		return err
	}
	b.Downloader = downloader

	// 5. Chain client
	chainClient, err := chain.NewClient(cfg.Solana.RPCURL, cfg.Solana.ProgramID, cfg.RequestTimeout())
	if err != nil {
		return err
	}
	b.Chain = chainClient
	slog.Info("✅ Chain client ready", slog.String("rpc", cfg.Solana.RPCURL))

	// 6. Broadcast hub and metrics
	b.Metrics = &infra.Metrics{}
	b.Hub = ws.NewHub(b.Metrics)

	// 7. Services share one per-mint lock table so settlement and
	// reconciliation never interleave on the same token.
	locks := service.NewMintLocks()
	rules := service.CurveRules{
		Mode:              service.GraduationMode(cfg.Curve.GraduationMode),
		ThresholdLamports: cfg.Curve.GraduationThreshold,
		InitialRealAsset:  cfg.Curve.InitialRealAsset,
	}

	b.Tokens = service.NewTokenService(store, downloader, cfg, rules)
	b.Settlement = service.NewSettlementService(store, b.Hub, b.Metrics, locks, rules, cfg.Curve.FeeBps)
	b.Reconciler = service.NewReconcilerService(store, chainClient, b.Hub, b.Metrics, locks, rules, cfg.Sync.MaxParallel)
	b.Holders = service.NewHolderService(store, chainClient, b.Metrics, cfg.Sync.MaxParallel)

	slog.Info("✅ Services wired")
	return nil
}
