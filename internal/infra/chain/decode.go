package chain

import (
	"encoding/binary"

	"curve_go/internal/domain"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// curveHeaderLen is the opaque identity prefix of the bonding-curve
	// account: 8-byte discriminator + 32-byte mint + 32-byte creator.
	curveHeaderLen = 72

	// curveMinLen is the minimum account size: header plus five u64 fields
	// and the graduated flag.
	curveMinLen = curveHeaderLen + 5*8 + 1

	// tokenAccountLen is the fixed size of an SPL token account.
	tokenAccountLen = 165
)

// CurveState is the decoded on-chain bonding-curve account. All reserves are
// raw smallest units, exactly as the external program stores them.
type CurveState struct {
	VirtualAssetReserves uint64
	VirtualBaseReserves  uint64
	RealAssetReserves    uint64
	RealBaseReserves     uint64
	TotalSupply          uint64
	Graduated            bool
}

// curveAccountFields mirrors the little-endian field order of the external
// program's account, after the header.
type curveAccountFields struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Graduated            bool
}

// DecodeCurveAccount decodes raw bonding-curve account bytes. It validates
// the minimum length up front and never returns a partially parsed state.
func DecodeCurveAccount(data []byte) (*CurveState, error) {
	if len(data) < curveMinLen {
		return nil, &domain.DecodeError{Msg: "curve account too short", Length: len(data)}
	}

	var fields curveAccountFields
	if err := bin.NewBinDecoder(data[curveHeaderLen:]).Decode(&fields); err != nil {
		return nil, &domain.DecodeError{Msg: err.Error(), Length: len(data)}
	}

	return &CurveState{
		VirtualAssetReserves: fields.VirtualTokenReserves,
		VirtualBaseReserves:  fields.VirtualSolReserves,
		RealAssetReserves:    fields.RealTokenReserves,
		RealBaseReserves:     fields.RealSolReserves,
		TotalSupply:          fields.TokenTotalSupply,
		Graduated:            fields.Graduated,
	}, nil
}

// DecodeTokenAccount extracts owner and balance from a raw SPL token
// account: mint at [0,32), owner at [32,64), amount u64 LE at [64,72).
func DecodeTokenAccount(account string, data []byte) (domain.TokenBalance, error) {
	if len(data) < tokenAccountLen {
		return domain.TokenBalance{}, &domain.DecodeError{Msg: "token account too short", Length: len(data)}
	}

	owner := solana.PublicKeyFromBytes(data[32:64])
	amount := binary.LittleEndian.Uint64(data[64:72])

	return domain.TokenBalance{
		Account: account,
		Owner:   owner.String(),
		Amount:  amount,
	}, nil
}
