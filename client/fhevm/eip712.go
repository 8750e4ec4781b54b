package fhevm

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// UserDecryptPrimaryType is the EIP-712 primary type of a decryption authorization.
const UserDecryptPrimaryType = "UserDecryptRequestVerification"

const (
	eip712DomainName    = "Decryption"
	eip712DomainVersion = "1"
)

// NewUserDecryptTypedData builds the authorization message signed by a user
// to allow re-encryption of their handles under publicKey.
func NewUserDecryptTypedData(
	chainID uint64,
	verifyingContract common.Address,
	publicKey string,
	contracts []common.Address,
	startTimestamp, durationDays int64,
) (apitypes.TypedData, error) {
	if _, err := hexutil.Decode(with0x(publicKey)); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("public key is not hex: %w", err)
	}
	if len(contracts) == 0 {
		return apitypes.TypedData{}, fmt.Errorf("at least one contract address is required")
	}
	if durationDays <= 0 {
		return apitypes.TypedData{}, fmt.Errorf("duration must be positive: %d days", durationDays)
	}

	addrs := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			UserDecryptPrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: UserDecryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              eip712DomainName,
			Version:           eip712DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         with0x(publicKey),
			"contractAddresses": addrs,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatInt(durationDays, 10),
			"extraData":         "0x00",
		},
	}, nil
}

// TypedDataDigest returns the EIP-712 signing digest.
func TypedDataDigest(td apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}

// RecoverTypedDataSigner returns the address that produced signature over td.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverTypedDataSigner(td apitypes.TypedData, signature string) (common.Address, error) {
	digest, err := TypedDataDigest(td)
	if err != nil {
		return common.Address{}, err
	}

	sig, err := hexutil.Decode(with0x(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func with0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

func strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
