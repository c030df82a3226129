package service

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// MintLocks serializes state changes per mint. Settlement and reconciliation
// for the same token never interleave; different mints proceed in parallel.
// One table is shared by every service touching curve state.
type MintLocks struct {
	locks *xsync.Map[string, *sync.Mutex]
}

// NewMintLocks creates an empty lock table.
func NewMintLocks() *MintLocks {
	return &MintLocks{locks: xsync.NewMap[string, *sync.Mutex]()}
}

// forMint returns the mutex guarding the given mint, creating it on first use.
func (l *MintLocks) forMint(mint string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(mint, &sync.Mutex{})
	return mu
}
