package decrypt

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
	"github.com/ChapmaBeerbohm/crypticscore/client/keys"
	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
)

var contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func handle(name string) fhevm.Handle {
	return fhevm.HandleFromBytes32(crypto.Keccak256Hash([]byte(name)))
}

// fakeLedger serves handles from a fixed table.
type fakeLedger struct {
	ledger.Ledger
	count   uint64
	handles map[[2]uint64]fhevm.Handle
	readErr error
	reads   atomic.Int32
}

func (f *fakeLedger) Address() common.Address { return contract }

func (f *fakeLedger) GetSubmissionCount(context.Context, uint64) (uint64, error) {
	return f.count, nil
}

func (f *fakeLedger) GetScoreHandle(_ context.Context, _, r, d uint64) (fhevm.Handle, error) {
	f.reads.Add(1)
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.handles[[2]uint64{r, d}], nil
}

// fakeInstance returns scripted decryption results.
type fakeInstance struct {
	values map[fhevm.Handle]any
	err    error

	mu       sync.Mutex
	requests []fhevm.UserDecryptRequest
}

func (f *fakeInstance) CreateEncryptedInput(common.Address, common.Address) fhevm.InputBuilder {
	return nil
}

func (f *fakeInstance) GenerateKeypair() (fhevm.Keypair, error) { return fhevm.Keypair{}, nil }

func (f *fakeInstance) CreateEIP712(string, []common.Address, int64, int64) (apitypes.TypedData, error) {
	return apitypes.TypedData{}, nil
}

func (f *fakeInstance) UserDecrypt(_ context.Context, req fhevm.UserDecryptRequest) (map[fhevm.Handle]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[fhevm.Handle]any)
	for _, h := range req.Handles() {
		if v, ok := f.values[h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (f *fakeInstance) ChainID() uint64 { return 31337 }

func (f *fakeInstance) Mode() string { return fhevm.ModeMock }

// fakeCredentials hands out a fixed credential and counts requests.
type fakeCredentials struct {
	cred  *keys.Credential
	calls atomic.Int32
}

func (f *fakeCredentials) Obtain(context.Context, fhevm.Instance, []common.Address, keys.Signer) (*keys.Credential, error) {
	f.calls.Add(1)
	return f.cred, nil
}

func newCredentials() *fakeCredentials {
	return &fakeCredentials{cred: &keys.Credential{
		PrivateKey:        "0x01",
		PublicKey:         "0x02",
		Signature:         "0x03",
		ContractAddresses: []common.Address{contract},
		StartTimestamp:    time.Now().Unix(),
		DurationDays:      365,
	}}
}

func newSigner(t *testing.T) keys.Signer {
	t.Helper()
	s, err := keys.GenerateLocalSigner()
	require.NoError(t, err)
	return s
}

func TestDecryptCampaignScoresExample(t *testing.T) {
	h1, h2, h3 := handle("h1"), handle("h2"), handle("h3")
	l := &fakeLedger{
		count: 2,
		handles: map[[2]uint64]fhevm.Handle{
			{0, 0}: h1,
			{0, 1}: h2,
			{1, 0}: h3,
		},
	}
	inst := &fakeInstance{values: map[fhevm.Handle]any{
		h1: big.NewInt(5),
		h2: big.NewInt(3),
		h3: big.NewInt(4),
	}}
	creds := newCredentials()

	o := New(inst, l, creds, newSigner(t), WithConcurrency(2))
	records, err := o.DecryptCampaignScores(t.Context(), 7, 2)
	require.NoError(t, err)

	assert.Equal(t, []ScoreRecord{
		{ParticipantIndex: 0, Scores: []int64{5, 3}},
		{ParticipantIndex: 1, Scores: []int64{4, 0}, Missing: []int{1}},
	}, records)

	require.Len(t, inst.requests, 1)
	assert.ElementsMatch(t, []fhevm.Handle{h1, h2, h3}, inst.requests[0].Handles())
	for _, p := range inst.requests[0].Pairs {
		assert.Equal(t, contract, p.Contract)
	}
	assert.Equal(t, int32(1), creds.calls.Load())
	assert.Equal(t, int32(4), l.reads.Load())
}

func TestDecryptCampaignScoresNothingToDecrypt(t *testing.T) {
	tests := []struct {
		name  string
		count uint64
	}{
		{"no submissions", 0},
		{"no stored handles", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &fakeInstance{}
			creds := newCredentials()
			o := New(inst, &fakeLedger{count: tt.count}, creds, newSigner(t))

			records, err := o.DecryptCampaignScores(t.Context(), 0, 3)
			require.NoError(t, err)
			assert.NotNil(t, records)
			assert.Empty(t, records)
			assert.Zero(t, creds.calls.Load())
			assert.Empty(t, inst.requests)
		})
	}
}

func TestDecryptCampaignScoresCoercion(t *testing.T) {
	hBig, hBool, hAbsent, hOK := handle("big"), handle("bool"), handle("absent"), handle("ok")
	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)

	l := &fakeLedger{
		count: 1,
		handles: map[[2]uint64]fhevm.Handle{
			{0, 0}: hBig,
			{0, 1}: hBool,
			{0, 2}: hAbsent,
			{0, 3}: hOK,
		},
	}
	inst := &fakeInstance{values: map[fhevm.Handle]any{
		hBig:  huge,
		hBool: true,
		hOK:   big.NewInt(2),
	}}

	records, err := New(inst, l, newCredentials(), newSigner(t)).DecryptCampaignScores(t.Context(), 0, 4)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []int64{0, 0, 0, 2}, records[0].Scores)
	assert.Equal(t, []int{0, 1, 2}, records[0].Missing)
}

func TestDecryptCampaignScoresErrors(t *testing.T) {
	h := handle("h")
	readErr := errors.New("rpc timeout")
	decryptErr := clienterrors.WrapError(errors.New("boom"), clienterrors.ErrDecryption, "relayer")

	tests := []struct {
		name  string
		l     *fakeLedger
		inst  *fakeInstance
		creds *fakeCredentials
		want  error
	}{
		{
			name:  "ledger read fails",
			l:     &fakeLedger{count: 1, readErr: readErr},
			inst:  &fakeInstance{},
			creds: newCredentials(),
			want:  readErr,
		},
		{
			name:  "credential unavailable",
			l:     &fakeLedger{count: 1, handles: map[[2]uint64]fhevm.Handle{{0, 0}: h}},
			inst:  &fakeInstance{},
			creds: &fakeCredentials{},
			want:  clienterrors.ErrCredentialUnavailable,
		},
		{
			name:  "decryption fails",
			l:     &fakeLedger{count: 1, handles: map[[2]uint64]fhevm.Handle{{0, 0}: h}},
			inst:  &fakeInstance{err: decryptErr},
			creds: newCredentials(),
			want:  clienterrors.ErrDecryption,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.inst, tt.l, tt.creds, newSigner(t)).DecryptCampaignScores(t.Context(), 0, 1)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(&fakeInstance{}, &fakeLedger{}, newCredentials(), newSigner(t)).DecryptCampaignScores(t.Context(), 0, 0)
	require.ErrorIs(t, err, clienterrors.ErrInvalidDimensions)
}

func TestDecryptCampaignScoresHandleLimit(t *testing.T) {
	tests := []struct {
		name       string
		count      uint64
		dimensions int
		opts       []Option
		wantErr    bool
	}{
		{"implausible count", 1 << 62, 5, nil, true},
		{"max uint64", ^uint64(0), 1, nil, true},
		{"over custom limit", 3, 2, []Option{WithMaxHandles(5)}, true},
		{"at custom limit", 2, 2, []Option{WithMaxHandles(4)}, false},
		{"dimensions above limit", 1, 5, []Option{WithMaxHandles(4)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLedger{count: tt.count}
			records, err := New(&fakeInstance{}, l, newCredentials(), newSigner(t), tt.opts...).
				DecryptCampaignScores(t.Context(), 0, tt.dimensions)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Empty(t, records)
				return
			}
			require.ErrorIs(t, err, clienterrors.ErrLedger)
			assert.Zero(t, l.reads.Load())
		})
	}
}

func TestDecryptHandle(t *testing.T) {
	h := handle("single")
	inst := &fakeInstance{values: map[fhevm.Handle]any{h: big.NewInt(9)}}
	o := New(inst, &fakeLedger{}, newCredentials(), newSigner(t))

	v, err := o.DecryptHandle(t.Context(), h)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.(*big.Int).Int64())

	_, err = o.DecryptHandle(t.Context(), handle("unknown"))
	require.ErrorIs(t, err, clienterrors.ErrDecryption)
}

func TestMockBackendEndToEnd(t *testing.T) {
	ctx := t.Context()
	cop, err := fhevm.NewCoprocessor()
	require.NoError(t, err)

	mem := ledger.NewMemory(contract, ledger.WithProofVerifier(cop))
	inst := fhevm.NewMockInstance(31337, "http://localhost:8545", fhevm.RelayerMetadata{
		ACLAddress:           common.HexToAddress("0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"),
		InputVerifierAddress: cop.VerifierAddress(),
		KMSVerifierAddress:   common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"),
	}, cop, fhevm.WithACL(mem))

	creator, bob, carol := newSigner(t), newSigner(t), newSigner(t)
	id, _, err := mem.As(creator.Address()).CreateCampaign(ctx, ledger.CampaignParams{
		Name:       "Coffee",
		Dimensions: []string{"Taste", "Price"},
		ScaleMax:   5,
		EndTime:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	submit := func(s keys.Signer, scores ...uint32) {
		b := inst.CreateEncryptedInput(contract, s.Address())
		for _, v := range scores {
			b = b.Add32(v)
		}
		enc, err := b.Encrypt(ctx)
		require.NoError(t, err)
		var receipt *types.Receipt
		receipt, err = mem.As(s.Address()).SubmitEncryptedRating(ctx, id, enc.Handles, enc.InputProof)
		require.NoError(t, err)
		require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	}
	submit(bob, 5, 3)
	submit(carol, 4, 1)

	manager := keys.NewManager(nil)
	o := New(inst, mem, manager, creator)

	_, err = o.DecryptCampaignScores(ctx, id, 2)
	require.Error(t, err)
	assert.True(t, clienterrors.IsRevert(err), "unexpected error: %v", err)

	_, err = mem.As(creator.Address()).AuthorizeCreatorDecryptAll(ctx, id)
	require.NoError(t, err)

	records, err := o.DecryptCampaignScores(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, []ScoreRecord{
		{ParticipantIndex: 0, Scores: []int64{5, 3}},
		{ParticipantIndex: 1, Scores: []int64{4, 1}},
	}, records)
}
