package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
)

// simBackend executes RatingManager calls against a Memory ledger, encoding
// inputs, outputs, events and reverts exactly as a node would.
type simBackend struct {
	t       *testing.T
	abi     abi.ABI
	mem     *Memory
	chainID *big.Int

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction
}

func newSimBackend(t *testing.T, mem *Memory) *simBackend {
	t.Helper()
	parsed, err := ParseABI()
	require.NoError(t, err)
	return &simBackend{
		t:        t,
		abi:      parsed,
		mem:      mem,
		chainID:  big.NewInt(31337),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

// revertErr carries revert data the way go-ethereum's rpc client does.
type revertErr struct{ data []byte }

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorCode() int         { return 3 }
func (e revertErr) ErrorData() interface{} { return hexutil.Encode(e.data) }

func (b *simBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *simBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *simBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *simBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *simBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(2_000_000_000)}, nil
}

func (b *simBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *simBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *simBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, args := b.decode(msg.Data)
	target := b.mem
	if !method.IsConstant() {
		// dry run against a copy
		target = cloneMemory(b.mem)
	}
	out, _, err := b.exec(ctx, target.As(msg.From), method, args)
	return out, err
}

func (b *simBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	sender, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	require.NoError(b.t, err)
	require.Equal(b.t, b.mem.Address(), *tx.To())

	method, args := b.decode(tx.Data())
	_, logs, execErr := b.exec(ctx, b.mem.As(sender), method, args)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nonces[sender]++
	b.sent = append(b.sent, tx)

	status := types.ReceiptStatusSuccessful
	if execErr != nil {
		status = types.ReceiptStatusFailed
		logs = nil
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(b.sent))),
		Logs:        logs,
	}
	return nil
}

func (b *simBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *simBackend) decode(data []byte) (*abi.Method, []any) {
	method, err := b.abi.MethodById(data[:4])
	require.NoError(b.t, err)
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(b.t, err)
	return method, args
}

func (b *simBackend) exec(ctx context.Context, m *Memory, method *abi.Method, args []any) ([]byte, []*types.Log, error) {
	id := func(i int) uint64 { return args[i].(*big.Int).Uint64() }

	var (
		out  []any
		logs []*types.Log
		err  error
	)
	switch method.Name {
	case "createRatingProject":
		params := CampaignParams{
			Name:          args[0].(string),
			Description:   args[1].(string),
			Dimensions:    args[2].([]string),
			ScaleMax:      args[3].(uint8),
			AllowMultiple: args[5].(bool),
		}
		params.EndTime = time.Unix(args[4].(*big.Int).Int64(), 0)
		var cid uint64
		cid, _, err = m.CreateCampaign(ctx, params)
		if err == nil {
			out = []any{u256(cid)}
			logs = append(logs, b.createdLog(m, cid, params))
		}
	case "submitRating":
		raw := args[1].([][32]byte)
		handles := make([]fhevm.Handle, len(raw))
		for i, h := range raw {
			handles[i] = fhevm.HandleFromBytes32(h)
		}
		_, err = m.SubmitEncryptedRating(ctx, id(0), handles, args[2].([]byte))
	case "getProject":
		var c *Campaign
		c, err = m.GetCampaign(ctx, id(0))
		if err == nil {
			out = []any{projectTuple{
				ProjectId:     u256(c.ID),
				Creator:       c.Creator,
				Name:          c.Name,
				Description:   c.Description,
				Dimensions:    c.Dimensions,
				ScaleMax:      c.ScaleMax,
				EndTime:       big.NewInt(c.EndTime),
				AllowMultiple: c.AllowMultiple,
				Ended:         c.Ended,
				RatingCount:   u256(c.SubmissionCount),
			}}
		}
	case "projectCount":
		var n uint64
		n, err = m.GetCampaignCount(ctx)
		out = []any{u256(n)}
	case "getProjectRatingCount":
		var n uint64
		n, err = m.GetSubmissionCount(ctx, id(0))
		out = []any{u256(n)}
	case "userHasRated":
		var ok bool
		ok, err = m.HasSubmitted(ctx, id(0), args[1].(common.Address))
		out = []any{ok}
	case "getRatingScore":
		var h fhevm.Handle
		h, err = m.GetScoreHandle(ctx, id(0), id(1), id(2))
		var word [32]byte
		if h != "" {
			word = h.Bytes32()
		}
		out = []any{word}
	case "allowCreatorDecryptAll":
		_, err = m.AuthorizeCreatorDecryptAll(ctx, id(0))
	case "allowCreatorDecryptDimension":
		_, err = m.AuthorizeCreatorDecryptDimension(ctx, id(0), id(1))
	case "allowUserDecryptOwnRating":
		_, err = m.AuthorizeOwnDecrypt(ctx, id(0))
	case "endProject":
		_, err = m.EndCampaignEarly(ctx, id(0))
	default:
		b.t.Fatalf("unexpected method %s", method.Name)
	}

	if err != nil {
		var re *RevertError
		if errors.As(err, &re) {
			if e, ok := b.abi.Errors[re.Name]; ok {
				return nil, nil, revertErr{data: e.ID[:4]}
			}
			reason, perr := (abi.Arguments{{Type: mustType(b.t, "string")}}).Pack(re.Error())
			require.NoError(b.t, perr)
			return nil, nil, revertErr{data: append(crypto.Keccak256([]byte("Error(string)"))[:4], reason...)}
		}
		return nil, nil, err
	}

	packed, err := method.Outputs.Pack(out...)
	require.NoError(b.t, err)
	return packed, logs, nil
}

func (b *simBackend) createdLog(m *Memory, id uint64, p CampaignParams) *types.Log {
	event := b.abi.Events["RatingProjectCreated"]
	data, err := event.Inputs.NonIndexed().Pack(p.Name, big.NewInt(int64(len(p.Dimensions))), big.NewInt(p.EndTime.Unix()))
	require.NoError(b.t, err)
	return &types.Log{
		Address: m.Address(),
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(u256(id)),
			common.BytesToHash(m.Caller().Bytes()),
		},
		Data: data,
	}
}

func mustType(t *testing.T, name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	require.NoError(t, err)
	return typ
}

// cloneMemory deep copies m so a call can be simulated without side effects.
func cloneMemory(m *Memory) *Memory {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	state := &memoryState{
		acl:     make(map[fhevm.Handle]map[common.Address]bool, len(m.state.acl)),
		txCount: m.state.txCount,
	}
	for h, allowed := range m.state.acl {
		cp := make(map[common.Address]bool, len(allowed))
		for a, v := range allowed {
			cp[a] = v
		}
		state.acl[h] = cp
	}
	for _, c := range m.state.campaigns {
		cp := &campaignState{
			Campaign:    c.Campaign,
			submissions: append([]submission(nil), c.submissions...),
			rated:       make(map[common.Address]bool, len(c.rated)),
		}
		for a, v := range c.rated {
			cp.rated[a] = v
		}
		state.campaigns = append(state.campaigns, cp)
	}

	clone := *m
	clone.state = state
	return &clone
}

func testHandles(seed string, n int) []fhevm.Handle {
	out := make([]fhevm.Handle, n)
	for i := range out {
		out[i] = fhevm.HandleFromBytes32(crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d", seed, i))))
	}
	return out
}
