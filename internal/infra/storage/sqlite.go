package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"curve_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists tokens, trades, holdings and holder snapshots.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at dbPath and runs
// migrations. Pass ":memory:" for an ephemeral database.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dbDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(
		&domain.Token{},
		&domain.Trade{},
		&domain.Holding{},
		&domain.Holder{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Transaction runs fn against a transaction-scoped Storage. Any error rolls
// the whole unit back.
func (s *Storage) Transaction(fn func(tx *Storage) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	})
}

// ======================================================================================
// Token Operations
// ======================================================================================

// CreateToken inserts a new token row. A duplicate mint is a conflict.
func (s *Storage) CreateToken(token *domain.Token) error {
	err := s.db.Create(token).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return &domain.ConflictError{Resource: "token", Key: token.MintAddress}
	}
	return err
}

// TokenByMint retrieves a token by its mint address.
func (s *Storage) TokenByMint(mint string) (*domain.Token, error) {
	var token domain.Token
	err := s.db.First(&token, "mint_address = ?", mint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Kind: "token", Key: mint}
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// SaveToken persists all columns of an existing token row.
func (s *Storage) SaveToken(token *domain.Token) error {
	return s.db.Save(token).Error
}

// TokensByStatus retrieves all tokens in the given lifecycle phase.
func (s *Storage) TokensByStatus(status domain.TokenStatus) ([]domain.Token, error) {
	var tokens []domain.Token
	err := s.db.Where("status = ?", status).Find(&tokens).Error
	return tokens, err
}

// AllTokens retrieves every token ordered by creation time, newest first.
func (s *Storage) AllTokens() ([]domain.Token, error) {
	var tokens []domain.Token
	err := s.db.Order("created_at DESC").Find(&tokens).Error
	return tokens, err
}

// ======================================================================================
// Trade Operations
// ======================================================================================

// CreateTrade inserts a settlement record. A duplicate signature is a
// conflict.
func (s *Storage) CreateTrade(trade *domain.Trade) error {
	err := s.db.Create(trade).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return &domain.ConflictError{Resource: "trade", Key: trade.Signature}
	}
	return err
}

// TradeBySignature retrieves a settlement record by its unique signature.
func (s *Storage) TradeBySignature(signature string) (*domain.Trade, error) {
	var trade domain.Trade
	err := s.db.First(&trade, "signature = ?", signature).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Kind: "trade", Key: signature}
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// TradesByMint retrieves the most recent trades for a mint, newest first.
func (s *Storage) TradesByMint(mint string, limit int) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.db.Where("mint_address = ?", mint).
		Order("settled_at DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// ======================================================================================
// Holding Operations
// ======================================================================================

// HoldingFor retrieves one wallet's position in one token.
func (s *Storage) HoldingFor(wallet, mint string) (*domain.Holding, error) {
	var holding domain.Holding
	err := s.db.First(&holding, "wallet = ? AND mint_address = ?", wallet, mint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Kind: "holding", Key: wallet + "/" + mint}
	}
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

// SaveHolding creates or updates a position row.
func (s *Storage) SaveHolding(holding *domain.Holding) error {
	holding.UpdatedAt = time.Now()
	return s.db.Save(holding).Error
}

// HoldingCount returns the number of non-empty positions in a token.
func (s *Storage) HoldingCount(mint string) (int, error) {
	var count int64
	err := s.db.Model(&domain.Holding{}).
		Where("mint_address = ? AND amount > 0", mint).
		Count(&count).Error
	return int(count), err
}

// DeleteHolding removes an emptied position row.
func (s *Storage) DeleteHolding(wallet, mint string) error {
	return s.db.Where("wallet = ? AND mint_address = ?", wallet, mint).
		Delete(&domain.Holding{}).Error
}

// ======================================================================================
// Holder Snapshot Operations
// ======================================================================================

// HoldersByMint retrieves the current holder snapshot for a mint, largest
// balances first.
func (s *Storage) HoldersByMint(mint string) ([]domain.Holder, error) {
	var holders []domain.Holder
	err := s.db.Where("mint_address = ?", mint).
		Order("balance DESC").
		Find(&holders).Error
	return holders, err
}

// ReplaceHolders swaps the holder snapshot for a mint in one transaction.
// FirstSeenAt is carried over from the previous snapshot for wallets that
// were already present; rows absent from the new snapshot are dropped.
func (s *Storage) ReplaceHolders(mint string, holders []domain.Holder) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var previous []domain.Holder
		if err := tx.Where("mint_address = ?", mint).Find(&previous).Error; err != nil {
			return err
		}
		firstSeen := make(map[string]time.Time, len(previous))
		for _, h := range previous {
			firstSeen[h.Wallet] = h.FirstSeenAt
		}

		if err := tx.Where("mint_address = ?", mint).Delete(&domain.Holder{}).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range holders {
			holders[i].ID = 0
			holders[i].MintAddress = mint
			if seen, ok := firstSeen[holders[i].Wallet]; ok {
				holders[i].FirstSeenAt = seen
			} else {
				holders[i].FirstSeenAt = now
			}
			holders[i].LastUpdatedAt = now
		}
		if len(holders) == 0 {
			return nil
		}
		return tx.Create(&holders).Error
	})
}

// HolderCount returns the number of holders in the current snapshot.
func (s *Storage) HolderCount(mint string) (int, error) {
	var count int64
	err := s.db.Model(&domain.Holder{}).Where("mint_address = ?", mint).Count(&count).Error
	return int(count), err
}
