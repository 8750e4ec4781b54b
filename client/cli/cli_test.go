package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChapmaBeerbohm/crypticscore/client"
	"github.com/ChapmaBeerbohm/crypticscore/client/config"
	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
	"github.com/ChapmaBeerbohm/crypticscore/client/keys"
	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
	"github.com/ChapmaBeerbohm/crypticscore/client/stats"
)

var (
	copOnce sync.Once
	cop     *fhevm.Coprocessor
	copErr  error
)

// testEnv is a development chain shared by several accounts.
type testEnv struct {
	mem      *ledger.Memory
	inst     *fhevm.MockInstance
	storages map[common.Address]keys.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	copOnce.Do(func() { cop, copErr = fhevm.NewCoprocessor() })
	require.NoError(t, copErr)

	mem := ledger.NewMemory(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), ledger.WithProofVerifier(cop))
	inst := fhevm.NewMockInstance(config.LocalhostChainID, "http://localhost:8545", fhevm.RelayerMetadata{
		ACLAddress:           common.HexToAddress("0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"),
		InputVerifierAddress: cop.VerifierAddress(),
		KMSVerifierAddress:   common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"),
	}, cop, fhevm.WithACL(mem))
	return &testEnv{mem: mem, inst: inst, storages: make(map[common.Address]keys.Storage)}
}

func (e *testEnv) account(t *testing.T) *keys.LocalSigner {
	t.Helper()
	s, err := keys.GenerateLocalSigner()
	require.NoError(t, err)
	e.storages[s.Address()] = keys.NewMemoryStorage()
	return s
}

// run executes one command line as signer and returns its output.
func (e *testEnv) run(t *testing.T, signer keys.Signer, args ...string) (string, error) {
	t.Helper()
	a := &appState{
		cfg:    config.DefaultConfig(),
		logger: log.NewNopLogger(),
		newSDK: func(ctx context.Context, cfg *config.ClientConfig, logger log.Logger) (*client.SDK, error) {
			return client.New(ctx, cfg,
				client.WithLogger(logger),
				client.WithSigner(signer),
				client.WithInstance(e.inst),
				client.WithLedger(e.mem.As(signer.Address())),
				client.WithStorage(e.storages[signer.Address()]),
			)
		},
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, signer keys.Signer, args ...string) string {
	t.Helper()
	out, err := e.run(t, signer, args...)
	require.NoError(t, err, out)
	return out
}

func TestCampaignWorkflow(t *testing.T) {
	env := newTestEnv(t)
	creator, bob, carol := env.account(t), env.account(t), env.account(t)

	var created struct {
		CampaignID uint64 `json:"campaignId"`
		TxHash     string `json:"txHash"`
	}
	out := env.mustRun(t, creator, "campaign", "create", "--name", "Coffee", "--dimensions", "Taste, Price", "--scale-max", "5")
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, uint64(0), created.CampaignID)
	assert.NotEmpty(t, created.TxHash)

	env.mustRun(t, bob, "rate", "submit", "0", "5", "3")
	env.mustRun(t, carol, "rate", "submit", "0", "4", "1")

	_, err := env.run(t, bob, "rate", "submit", "0", "2", "2")
	assert.ErrorIs(t, err, clienterrors.ErrAlreadyRated)

	_, err = env.run(t, creator, "results", "decrypt", "0")
	require.Error(t, err)
	assert.True(t, clienterrors.IsRevert(err), "unexpected error: %v", err)

	env.mustRun(t, creator, "authorize", "creator", "0")

	var summary stats.Summary
	out = env.mustRun(t, creator, "results", "decrypt", "0", "--summary")
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Count)
	assert.InDeltaSlice(t, []float64{4.5, 2}, summary.Averages, 1e-9)

	var cred credentialOutput
	out = env.mustRun(t, creator, "credential", "show")
	require.NoError(t, json.Unmarshal([]byte(out), &cred))
	assert.Equal(t, creator.Address(), cred.UserAddress)
	assert.True(t, cred.Valid)
	assert.NotContains(t, out, "privateKey")

	env.mustRun(t, creator, "credential", "clear")
	out = env.mustRun(t, creator, "credential", "show")
	assert.JSONEq(t, `{"credential": null}`, out)

	_, err = env.run(t, bob, "campaign", "end", "0")
	assert.ErrorIs(t, err, clienterrors.ErrUnauthorized)
	env.mustRun(t, creator, "campaign", "end", "0")

	var info campaignOutput
	out = env.mustRun(t, bob, "campaign", "info", "0")
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, ledger.StatusEnded, info.Status)
	assert.Equal(t, []string{"Taste", "Price"}, info.Dimensions)
	assert.Equal(t, uint64(2), info.SubmissionCount)

	var list []campaignOutput
	out = env.mustRun(t, bob, "campaign", "list", "--mine")
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Empty(t, list)
	out = env.mustRun(t, bob, "campaign", "list")
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 1)
}

func TestOwnAndDimensionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	creator, bob := env.account(t), env.account(t)

	env.mustRun(t, creator, "campaign", "create", "--name", "Hotel", "--dimensions", "Room,Service,Breakfast", "--scale-max", "10")
	env.mustRun(t, bob, "rate", "submit", "0", "7", "8", "9")

	_, err := env.run(t, bob, "authorize", "creator", "0")
	assert.ErrorIs(t, err, clienterrors.ErrUnauthorized)

	_, err = env.run(t, creator, "authorize", "dimension", "0", "3")
	assert.ErrorIs(t, err, clienterrors.ErrInvalidDimensions)

	env.mustRun(t, creator, "authorize", "dimension", "0", "1")
	env.mustRun(t, bob, "authorize", "own", "0")

	var res client.Results
	out := env.mustRun(t, bob, "results", "decrypt", "0")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Records, 1)
	assert.Equal(t, []int64{7, 8, 9}, res.Records[0].Scores)
}

func TestArgumentErrors(t *testing.T) {
	env := newTestEnv(t)
	signer := env.account(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing name", []string{"campaign", "create", "--dimensions", "Taste"}},
		{"bad campaign id", []string{"campaign", "info", "first"}},
		{"negative id", []string{"campaign", "end", "-1"}},
		{"no scores", []string{"rate", "submit", "0"}},
		{"bad score", []string{"rate", "submit", "0", "five"}},
		{"bad dimension", []string{"authorize", "dimension", "0", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, signer, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestSplitDimensions(t *testing.T) {
	assert.Nil(t, splitDimensions(" "))
	assert.Equal(t, []string{"Taste", "Price"}, splitDimensions("Taste, Price"))
	assert.Equal(t, []string{"Taste", ""}, splitDimensions("Taste,"))
}

func TestServeToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	env := newTestEnv(t)

	var tok map[string]string
	out := env.mustRun(t, env.account(t), "serve", "token", "--subject", "ops")
	require.NoError(t, json.Unmarshal([]byte(out), &tok))
	assert.NotEmpty(t, tok["token"])
}
