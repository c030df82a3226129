package service

import (
	"context"
	"log/slog"
	"time"

	"curve_go/internal/domain"
	"curve_go/internal/infra"
	"curve_go/internal/infra/storage"
)

// RegisterRequest describes a token whose curve the external program has
// already initialized. The backend only mirrors it.
type RegisterRequest struct {
	MintAddress string
	Name        string
	Symbol      string
	Description string
	ImageURL    string
	Creator     string
}

// TokenService registers new tokens and serves token reads.
type TokenService struct {
	store *storage.Storage
	icons *infra.IconDownloader
	cfg   *infra.Config
	rules CurveRules
}

// NewTokenService creates a token service. icons may be nil to disable
// icon caching.
func NewTokenService(store *storage.Storage, icons *infra.IconDownloader, cfg *infra.Config, rules CurveRules) *TokenService {
	return &TokenService{store: store, icons: icons, cfg: cfg, rules: rules}
}

// Register creates the local mirror row for a freshly launched token with
// the configured initial reserves. A duplicate mint is a conflict. The icon
// download runs in the background and never blocks registration.
func (s *TokenService) Register(ctx context.Context, req RegisterRequest) (*domain.Token, error) {
	if err := validateRegisterRequest(req); err != nil {
		return nil, err
	}

	token := &domain.Token{
		MintAddress: req.MintAddress,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Creator:     req.Creator,
		Decimals:    s.cfg.Curve.Decimals,
		Reserve: domain.Reserve{
			VirtualBase:  s.cfg.Curve.InitialVirtualBase,
			VirtualAsset: s.cfg.Curve.InitialVirtualAsset,
			RealAsset:    s.cfg.Curve.InitialRealAsset,
			TotalSupply:  s.cfg.Curve.TotalSupply,
		},
		GraduationThreshold: s.cfg.Curve.GraduationThreshold,
		Status:              domain.TokenStatusActive,
		CurrentPrice:        CurrentPrice(s.cfg.Curve.InitialVirtualBase, s.cfg.Curve.InitialVirtualAsset),
		CreatedAt:           time.Now(),
	}
	token.MarketCap = MarketCap(token.Reserve.TotalSupply, token.CurrentPrice)
	token.ProgressPct = s.rules.Progress(0, token.Reserve.RealAsset)

	if err := s.store.CreateToken(token); err != nil {
		return nil, err
	}

	if s.icons != nil && req.ImageURL != "" {
		go s.cacheIcon(req.MintAddress, req.ImageURL)
	}

	slog.Info("🪙 Token registered",
		slog.String("mint", token.MintAddress),
		slog.String("symbol", token.Symbol))
	return token, nil
}

// Get returns one token by mint address.
func (s *TokenService) Get(ctx context.Context, mint string) (*domain.Token, error) {
	return s.store.TokenByMint(mint)
}

// List returns all tokens, newest first.
func (s *TokenService) List(ctx context.Context) ([]domain.Token, error) {
	return s.store.AllTokens()
}

// Trades returns the most recent settlements for a mint.
func (s *TokenService) Trades(ctx context.Context, mint string, limit int) ([]domain.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.store.TokenByMint(mint); err != nil {
		return nil, err
	}
	return s.store.TradesByMint(mint, limit)
}

// Holders returns the current holder snapshot for a mint, largest first.
func (s *TokenService) Holders(ctx context.Context, mint string) ([]domain.Holder, error) {
	if _, err := s.store.TokenByMint(mint); err != nil {
		return nil, err
	}
	return s.store.HoldersByMint(mint)
}

func (s *TokenService) cacheIcon(mint, imageURL string) {
	path, err := s.icons.DownloadIcon(mint, imageURL)
	if err != nil {
		slog.Warn("Icon download failed",
			slog.String("mint", mint), slog.Any("error", err))
		return
	}
	token, err := s.store.TokenByMint(mint)
	if err != nil {
		return
	}
	token.IconPath = path
	if err := s.store.SaveToken(token); err != nil {
		slog.Warn("Icon path update failed",
			slog.String("mint", mint), slog.Any("error", err))
	}
}

func validateRegisterRequest(req RegisterRequest) error {
	switch {
	case req.MintAddress == "":
		return &domain.ValidationError{Field: "mint_address", Msg: "required"}
	case len(req.MintAddress) > 44:
		return &domain.ValidationError{Field: "mint_address", Msg: "too long"}
	case req.Name == "":
		return &domain.ValidationError{Field: "name", Msg: "required"}
	case req.Symbol == "" || len(req.Symbol) > 10:
		return &domain.ValidationError{Field: "symbol", Msg: "required, at most 10 characters"}
	}
	return nil
}
