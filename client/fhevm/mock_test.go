package fhevm

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

type denyACL struct {
	deny common.Address
}

func (d denyACL) IsAllowed(_ context.Context, _ Handle, account common.Address) (bool, error) {
	return account != d.deny, nil
}

func newTestMock(t *testing.T, opts ...MockOption) *MockInstance {
	t.Helper()
	meta := RelayerMetadata{
		ACLAddress:           testACL,
		InputVerifierAddress: testInputVerifier,
		KMSVerifierAddress:   testKMSVerifier,
	}
	return NewMockInstance(31337, "http://localhost:8545", meta, testCoprocessor(t), opts...)
}

func authorizedRequest(t *testing.T, inst Instance, handles []Handle, start int64) UserDecryptRequest {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	user := crypto.PubkeyToAddress(key.PublicKey)

	kp, err := inst.GenerateKeypair()
	require.NoError(t, err)

	contracts := []common.Address{testContract}
	td, err := inst.CreateEIP712(kp.PublicKey, contracts, start, 365)
	require.NoError(t, err)

	pairs := make([]HandleContractPair, len(handles))
	for i, h := range handles {
		pairs[i] = HandleContractPair{Handle: h, Contract: testContract}
	}

	return UserDecryptRequest{
		Pairs:             pairs,
		PrivateKey:        kp.PrivateKey,
		PublicKey:         kp.PublicKey,
		Signature:         signTypedData(t, td, key),
		ContractAddresses: contracts,
		UserAddress:       user,
		StartTimestamp:    start,
		DurationDays:      365,
	}
}

func TestMockRoundTrip(t *testing.T) {
	ctx := t.Context()
	inst := newTestMock(t)
	require.Equal(t, ModeMock, inst.Mode())

	user := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	enc, err := inst.CreateEncryptedInput(testContract, user).
		Add32(5).
		Add32(4).
		Add64(1 << 40).
		AddBool(true).
		Encrypt(ctx)
	require.NoError(t, err)
	require.Len(t, enc.Handles, 4)
	require.NoError(t, inst.Coprocessor().VerifyInputProof(testContract, user, enc.Handles, enc.InputProof))

	assert.Equal(t, TypeUint32, enc.Handles[0].Type())
	assert.Equal(t, TypeUint64, enc.Handles[2].Type())
	assert.Equal(t, TypeBool, enc.Handles[3].Type())

	req := authorizedRequest(t, inst, enc.Handles, time.Now().Unix())
	values, err := inst.UserDecrypt(ctx, req)
	require.NoError(t, err)
	require.Len(t, values, 4)

	assert.Equal(t, 0, big.NewInt(5).Cmp(values[enc.Handles[0]].(*big.Int)))
	assert.Equal(t, 0, big.NewInt(4).Cmp(values[enc.Handles[1]].(*big.Int)))
	assert.Equal(t, 0, new(big.Int).Lsh(big.NewInt(1), 40).Cmp(values[enc.Handles[2]].(*big.Int)))
	assert.Equal(t, true, values[enc.Handles[3]])
}

func TestMockUserDecryptEmpty(t *testing.T) {
	inst := newTestMock(t)
	values, err := inst.UserDecrypt(t.Context(), UserDecryptRequest{})
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestMockUserDecryptRejects(t *testing.T) {
	ctx := t.Context()
	inst := newTestMock(t)
	user := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	enc, err := inst.CreateEncryptedInput(testContract, user).Add32(7).Encrypt(ctx)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *UserDecryptRequest)
		inst   *MockInstance
		check  func(error) bool
	}{
		{
			name: "signature from another user",
			mutate: func(r *UserDecryptRequest) {
				r.UserAddress = user
			},
			check: clienterrors.IsRevert,
		},
		{
			name: "expired authorization",
			mutate: func(r *UserDecryptRequest) {
				*r = authorizedRequest(t, inst, enc.Handles, time.Now().Add(-366*24*time.Hour).Unix())
			},
			check: clienterrors.IsDecryptionError,
		},
		{
			name: "authorization not started",
			mutate: func(r *UserDecryptRequest) {
				*r = authorizedRequest(t, inst, enc.Handles, time.Now().Add(time.Hour).Unix())
			},
			check: clienterrors.IsDecryptionError,
		},
		{
			name: "contract not covered",
			mutate: func(r *UserDecryptRequest) {
				r.Pairs[0].Contract = common.HexToAddress("0x00000000000000000000000000000000000000ff")
			},
			check: clienterrors.IsRevert,
		},
		{
			name:   "acl denies contract",
			mutate: func(r *UserDecryptRequest) {},
			inst:   newTestMock(t, WithACL(denyACL{deny: testContract})),
			check:  clienterrors.IsRevert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := inst
			if tt.inst != nil {
				target = tt.inst
			}
			req := authorizedRequest(t, target, enc.Handles, time.Now().Unix())
			tt.mutate(&req)

			_, err := target.UserDecrypt(ctx, req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestMockUserDecryptUnknownHandle(t *testing.T) {
	inst := newTestMock(t)
	h := deriveHandle([]byte("never stored"), 0, 31337, TypeUint32)
	req := authorizedRequest(t, inst, []Handle{h}, time.Now().Unix())

	_, err := inst.UserDecrypt(t.Context(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, clienterrors.ErrDecryption)
}

func TestMockClockOverride(t *testing.T) {
	ctx := t.Context()
	start := time.Now()
	inst := newTestMock(t, WithClock(func() time.Time { return start.Add(400 * 24 * time.Hour) }))

	enc, err := inst.CreateEncryptedInput(testContract, testContract).Add32(1).Encrypt(ctx)
	require.NoError(t, err)

	req := authorizedRequest(t, inst, enc.Handles, start.Unix())
	_, err = inst.UserDecrypt(ctx, req)
	require.ErrorContains(t, err, "authorization expired")
}

func TestVerifyInputProofTampered(t *testing.T) {
	ctx := t.Context()
	inst := newTestMock(t)
	user := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	enc, err := inst.CreateEncryptedInput(testContract, user).Add32(1).Add32(2).Encrypt(ctx)
	require.NoError(t, err)

	cop := inst.Coprocessor()
	require.Error(t, cop.VerifyInputProof(testContract, testContract, enc.Handles, enc.InputProof))
	require.Error(t, cop.VerifyInputProof(testContract, user, enc.Handles[:1], enc.InputProof))
	require.Error(t, cop.VerifyInputProof(testContract, user, []Handle{enc.Handles[1], enc.Handles[0]}, enc.InputProof))
	require.Error(t, cop.VerifyInputProof(testContract, user, enc.Handles, nil))
}
