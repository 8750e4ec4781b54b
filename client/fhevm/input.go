package fhevm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrEmptyInput is returned when Encrypt is called before any value was added.
var ErrEmptyInput = errors.New("encrypted input has no values")

type inputValue struct {
	typ   FheType
	value *big.Int
}

type encryptFunc func(ctx context.Context, contract, user common.Address, values []inputValue) (*EncryptedInput, error)

// inputBuilder is shared by both backends; only the final encryption differs.
type inputBuilder struct {
	contract common.Address
	user     common.Address
	values   []inputValue
	bits     int
	encrypt  encryptFunc
}

func newInputBuilder(contract, user common.Address, fn encryptFunc) *inputBuilder {
	return &inputBuilder{contract: contract, user: user, encrypt: fn}
}

func (b *inputBuilder) add(t FheType, v *big.Int) InputBuilder {
	b.values = append(b.values, inputValue{typ: t, value: v})
	b.bits += t.Bits()
	return b
}

func (b *inputBuilder) Add32(v uint32) InputBuilder {
	return b.add(TypeUint32, new(big.Int).SetUint64(uint64(v)))
}

func (b *inputBuilder) Add64(v uint64) InputBuilder {
	return b.add(TypeUint64, new(big.Int).SetUint64(v))
}

func (b *inputBuilder) AddBool(v bool) InputBuilder {
	n := big.NewInt(0)
	if v {
		n.SetInt64(1)
	}
	return b.add(TypeBool, n)
}

func (b *inputBuilder) AddAddress(a common.Address) InputBuilder {
	return b.add(TypeAddress, new(big.Int).SetBytes(a.Bytes()))
}

func (b *inputBuilder) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	if len(b.values) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b.values) > 255 {
		return nil, fmt.Errorf("encrypted input holds at most 255 values, got %d", len(b.values))
	}
	if b.bits > MaxInputBits {
		return nil, fmt.Errorf("encrypted input exceeds %d bits: %d", MaxInputBits, b.bits)
	}
	return b.encrypt(ctx, b.contract, b.user, b.values)
}

// checkPlaintext rejects a decrypted value that no input of type t can hold,
// as produced by a corrupted ciphertext or one encrypted under other keys.
func checkPlaintext(t FheType, v *big.Int) error {
	limit := t.Bits()
	if limit == 0 {
		limit = 256
	}
	if v.Sign() < 0 || v.BitLen() > limit {
		return fmt.Errorf("plaintext of %d bits does not fit %s", v.BitLen(), t)
	}
	return nil
}

// encodeValue serializes a plaintext to a fixed 32-byte big-endian word.
// v must be non-negative and at most 256 bits wide.
func encodeValue(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

// decodeValue maps a plaintext word back to the Go value exposed by UserDecrypt.
func decodeValue(t FheType, b []byte) any {
	v := new(big.Int).SetBytes(b)
	if t == TypeBool {
		return v.Sign() != 0
	}
	return v
}
