package chain

import (
	"fmt"

	"curve_go/internal/domain"

	"github.com/gagliardetto/solana-go"
)

// curveSeed is the namespace seed used by the external program:
// PDA = findProgramAddress(["bonding_curve", mint], programID).
const curveSeed = "bonding_curve"

// DeriveCurveAddress derives the bonding-curve account address for a mint.
// The derivation must match the external program's bit for bit.
func DeriveCurveAddress(mint string, programID solana.PublicKey) (solana.PublicKey, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, &domain.ValidationError{Field: "mint", Msg: "invalid base58 public key"}
	}

	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(curveSeed), mintKey.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive curve address for %s: %w", mint, err)
	}
	return addr, nil
}
