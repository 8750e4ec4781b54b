package fhevm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// FheType is the encrypted value type encoded in byte 30 of a handle.
type FheType uint8

const (
	TypeBool    FheType = 0
	TypeUint32  FheType = 4
	TypeUint64  FheType = 5
	TypeAddress FheType = 7
)

// Bits returns the plaintext width of the type.
func (t FheType) Bits() int {
	switch t {
	case TypeBool:
		return 2
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	case TypeAddress:
		return 160
	}
	return 0
}

func (t FheType) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint32:
		return "euint32"
	case TypeUint64:
		return "euint64"
	case TypeAddress:
		return "eaddress"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

const handleVersion = 0

// Handle is an opaque 32-byte reference to a ciphertext, hex encoded with a 0x prefix.
//
// Layout: bytes 0..20 hash prefix, 21 index within its input, 22..29 chain id,
// 30 FheType, 31 version.
type Handle string

// ParseHandle validates and normalizes a hex handle.
func ParseHandle(s string) (Handle, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", clienterrors.WrapError(err, clienterrors.ErrInvalidHandle, "decode %q", s)
	}
	if len(b) != common.HashLength {
		return "", clienterrors.WrapError(fmt.Errorf("got %d bytes", len(b)), clienterrors.ErrInvalidHandle, "handle length")
	}
	return Handle(strings.ToLower(s)), nil
}

// HandleFromBytes32 encodes a raw handle.
func HandleFromBytes32(b [32]byte) Handle {
	return Handle(hexutil.Encode(b[:]))
}

// Bytes32 returns the raw handle. Malformed handles return the zero value.
func (h Handle) Bytes32() [32]byte {
	var out [32]byte
	b, err := hexutil.Decode(string(h))
	if err != nil || len(b) != len(out) {
		return out
	}
	copy(out[:], b)
	return out
}

// IsZero reports whether the handle is empty or all zero bytes.
func (h Handle) IsZero() bool {
	return h == "" || h.Bytes32() == [32]byte{}
}

// Type returns the encrypted type carried by the handle.
func (h Handle) Type() FheType {
	return FheType(h.Bytes32()[30])
}

// Index returns the position of the handle within the input that produced it.
func (h Handle) Index() uint8 {
	return h.Bytes32()[21]
}

// ChainID returns the chain the handle was produced for.
func (h Handle) ChainID() uint64 {
	b := h.Bytes32()
	return binary.BigEndian.Uint64(b[22:30])
}

func (h Handle) String() string {
	return string(h)
}

// deriveHandle computes the handle of the index-th value of an input whose
// ciphertext digest is seed.
func deriveHandle(seed []byte, index uint8, chainID uint64, t FheType) Handle {
	var out [32]byte
	digest := crypto.Keccak256(seed, []byte{index})
	copy(out[:21], digest[:21])
	out[21] = index
	binary.BigEndian.PutUint64(out[22:30], chainID)
	out[30] = byte(t)
	out[31] = handleVersion
	return HandleFromBytes32(out)
}
