package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"curve_go/internal/domain"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client reads ledger state over Solana JSON-RPC. Every call is a single
// request with a bounded timeout; failures surface as ExternalServiceError
// and are handled per asset by the callers.
type Client struct {
	rpc       *rpc.Client
	programID solana.PublicKey
	timeout   time.Duration
}

// NewClient creates a chain client for the given RPC endpoint and
// bonding-curve program.
func NewClient(endpoint, programID string, timeout time.Duration) (*Client, error) {
	pid, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, &domain.ValidationError{Field: "program_id", Msg: "invalid base58 public key"}
	}
	return &Client{
		rpc:       rpc.New(endpoint),
		programID: pid,
		timeout:   timeout,
	}, nil
}

// ProgramID returns the configured bonding-curve program key.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

// FetchCurveAccount derives the curve address for the mint and fetches its
// raw account bytes (base64 under the hood).
func (c *Client) FetchCurveAccount(ctx context.Context, mint string) ([]byte, error) {
	addr, err := DeriveCurveAddress(mint, c.programID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "getAccountInfo " + addr.String(), Err: err}
	}
	if res == nil || res.Value == nil {
		return nil, &domain.ExternalServiceError{Op: "getAccountInfo " + addr.String(), Err: errors.New("account not found")}
	}

	return res.Value.Data.GetBinary(), nil
}

// TokenAccounts enumerates every SPL token account holding the given mint
// in one query, filtered server-side by record size and mint prefix.
func (c *Client) TokenAccounts(ctx context.Context, mint string) ([]domain.TokenBalance, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, &domain.ValidationError{Field: "mint", Msg: "invalid base58 public key"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: tokenAccountLen},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(mintKey.Bytes())}},
		},
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "getProgramAccounts " + mint, Err: err}
	}

	balances := make([]domain.TokenBalance, 0, len(out))
	for _, acc := range out {
		bal, err := DecodeTokenAccount(acc.Pubkey.String(), acc.Account.Data.GetBinary())
		if err != nil {
			slog.Warn("Skipping malformed token account",
				slog.String("account", acc.Pubkey.String()), slog.Any("error", err))
			continue
		}
		balances = append(balances, bal)
	}
	return balances, nil
}
