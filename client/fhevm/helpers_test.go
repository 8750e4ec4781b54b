package fhevm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
)

var (
	sharedCopOnce sync.Once
	sharedCop     *Coprocessor
	sharedCopErr  error
)

// testCoprocessor returns a coprocessor shared by the package tests; key generation is slow.
func testCoprocessor(t *testing.T) *Coprocessor {
	t.Helper()
	sharedCopOnce.Do(func() {
		sharedCop, sharedCopErr = NewCoprocessor()
	})
	require.NoError(t, sharedCopErr)
	return sharedCop
}

func signTypedData(t *testing.T, td apitypes.TypedData, key *ecdsa.PrivateKey) string {
	t.Helper()
	digest, err := TypedDataDigest(td)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

var (
	testACL           = common.HexToAddress("0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D")
	testInputVerifier = common.HexToAddress("0x901F8942346f7AB3a01F6D7613119Bca447Bb030")
	testKMSVerifier   = common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC")
	testContract      = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

// fakeProvider answers JSON-RPC calls from canned responses.
type fakeProvider struct {
	mu        sync.Mutex
	responses map[string]any
	errs      map[string]error
	calls     []string
}

func newFakeProvider(responses map[string]any) *fakeProvider {
	return &fakeProvider{responses: responses, errs: map[string]error{}}
}

func (f *fakeProvider) CallContext(_ context.Context, result any, method string, _ ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)

	if err, ok := f.errs[method]; ok {
		return err
	}
	v, ok := f.responses[method]
	if !ok {
		return fmt.Errorf("the method %s does not exist/is not available", method)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (f *fakeProvider) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func hardhatProvider(chainID uint64) *fakeProvider {
	return newFakeProvider(map[string]any{
		"eth_chainId":        hexutil.EncodeUint64(chainID),
		"web3_clientVersion": "HardhatNetwork/2.22.19/@nomicfoundation/edr/0.8.0",
		"fhevm_relayer_metadata": map[string]string{
			"ACLAddress":           testACL.Hex(),
			"InputVerifierAddress": testInputVerifier.Hex(),
			"KMSVerifierAddress":   testKMSVerifier.Hex(),
		},
	})
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *statusRecorder) record(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *statusRecorder) get() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.statuses...)
}
