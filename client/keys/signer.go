// Package keys manages the signer and the user decryption credentials that
// authorize a re-encryption keypair to read confidential scores.
package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
)

// Signer is the signing capability of a user account.
type Signer interface {
	// Address returns the account address.
	Address() common.Address

	// SignTypedData signs an EIP-712 message and returns a 0x prefixed
	// 65-byte signature with v in {27, 28}.
	SignTypedData(ctx context.Context, td apitypes.TypedData) (string, error)

	// SignTx signs a transaction for the given chain.
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalSigner signs with a secp256k1 key held in memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner wraps an existing key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewLocalSignerFromHex parses a hex private key, with or without 0x.
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// GenerateLocalSigner creates a signer with a random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) Address() common.Address { return s.address }

// PrivateKey exposes the key for transactors that need it directly.
func (s *LocalSigner) PrivateKey() *ecdsa.PrivateKey { return s.key }

func (s *LocalSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	digest, err := fhevm.TypedDataDigest(td)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func (s *LocalSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
