package ledger

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
)

// ProofVerifier checks that handles were produced for contract and user.
type ProofVerifier interface {
	VerifyInputProof(contract, user common.Address, handles []fhevm.Handle, proof []byte) error
}

type submission struct {
	rater   common.Address
	handles []fhevm.Handle
}

type campaignState struct {
	Campaign
	submissions []submission
	rated       map[common.Address]bool
}

type memoryState struct {
	mu        sync.RWMutex
	campaigns []*campaignState
	acl       map[fhevm.Handle]map[common.Address]bool
	txCount   uint64
}

// Memory simulates the RatingManager contract in process. It applies the
// same rules as the deployed contract and tracks handle access so it can
// serve as the ACL of a mock encryption instance.
//
// Values returned by As share state with their parent.
type Memory struct {
	address  common.Address
	caller   common.Address
	state    *memoryState
	now      func() time.Time
	verifier ProofVerifier
}

var (
	_ Ledger    = (*Memory)(nil)
	_ fhevm.ACL = (*Memory)(nil)
)

// MemoryOption customizes a Memory ledger.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the block time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithProofVerifier requires submitted handles to carry a valid input proof.
func WithProofVerifier(v ProofVerifier) MemoryOption {
	return func(m *Memory) {
		m.verifier = v
	}
}

// NewMemory creates an empty simulated contract at address.
func NewMemory(address common.Address, opts ...MemoryOption) *Memory {
	m := &Memory{
		address: address,
		state:   &memoryState{acl: make(map[fhevm.Handle]map[common.Address]bool)},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// As returns a view of the same contract whose writes are sent by caller.
func (m *Memory) As(caller common.Address) *Memory {
	view := *m
	view.caller = caller
	return &view
}

// Caller returns the sender used for writes.
func (m *Memory) Caller() common.Address { return m.caller }

func (m *Memory) Address() common.Address { return m.address }

// IsAllowed reports whether account may access h.
func (m *Memory) IsAllowed(_ context.Context, h fhevm.Handle, account common.Address) (bool, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	return m.state.acl[h][account], nil
}

func (m *Memory) CreateCampaign(ctx context.Context, params CampaignParams) (uint64, *types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := params.Validate(m.now()); err != nil {
		return 0, nil, err
	}

	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uint64(len(s.campaigns))
	s.campaigns = append(s.campaigns, &campaignState{
		Campaign: Campaign{
			ID:            id,
			Creator:       m.caller,
			Name:          params.Name,
			Description:   params.Description,
			Dimensions:    append([]string(nil), params.Dimensions...),
			ScaleMax:      params.ScaleMax,
			EndTime:       params.EndTime.Unix(),
			AllowMultiple: params.AllowMultiple,
		},
		rated: make(map[common.Address]bool),
	})
	return id, m.receiptLocked(), nil
}

func (m *Memory) SubmitEncryptedRating(ctx context.Context, campaignID uint64, handles []fhevm.Handle, inputProof []byte) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := m.campaignLocked(campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Active(m.now()) {
		return nil, &RevertError{Name: "ProjectAlreadyEnded"}
	}
	if !c.AllowMultiple && c.rated[m.caller] {
		return nil, &RevertError{Name: "AlreadyRated"}
	}
	if len(handles) != len(c.Dimensions) {
		return nil, &RevertError{Name: "DimensionMismatch"}
	}
	if m.verifier != nil {
		if err := m.verifier.VerifyInputProof(m.address, m.caller, handles, inputProof); err != nil {
			return nil, &RevertError{Name: "InvalidInputProof", Args: []any{err.Error()}}
		}
	}

	stored := append([]fhevm.Handle(nil), handles...)
	for _, h := range stored {
		m.allowLocked(h, m.address)
	}
	c.submissions = append(c.submissions, submission{rater: m.caller, handles: stored})
	c.rated[m.caller] = true
	c.SubmissionCount++
	return m.receiptLocked(), nil
}

func (m *Memory) GetCampaign(ctx context.Context, campaignID uint64) (*Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	c, err := m.campaignLocked(campaignID)
	if err != nil {
		return nil, err
	}
	out := c.Campaign
	out.Dimensions = append([]string(nil), c.Dimensions...)
	return &out, nil
}

func (m *Memory) GetCampaignCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	return uint64(len(m.state.campaigns)), nil
}

func (m *Memory) HasSubmitted(ctx context.Context, campaignID uint64, account common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	c, err := m.campaignLocked(campaignID)
	if err != nil {
		return false, err
	}
	return c.rated[account], nil
}

func (m *Memory) GetSubmissionCount(ctx context.Context, campaignID uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	c, err := m.campaignLocked(campaignID)
	if err != nil {
		return 0, err
	}
	return c.SubmissionCount, nil
}

func (m *Memory) GetScoreHandle(ctx context.Context, campaignID, submissionIndex, dimensionIndex uint64) (fhevm.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	c, err := m.campaignLocked(campaignID)
	if err != nil {
		return "", err
	}
	if submissionIndex >= uint64(len(c.submissions)) {
		return "", nil
	}
	handles := c.submissions[submissionIndex].handles
	if dimensionIndex >= uint64(len(handles)) {
		return "", nil
	}
	return handles[dimensionIndex], nil
}

func (m *Memory) AuthorizeCreatorDecryptAll(ctx context.Context, campaignID uint64) (*types.Receipt, error) {
	return m.authorize(ctx, campaignID, func(c *campaignState) error {
		if c.Creator != m.caller {
			return &RevertError{Name: "Unauthorized"}
		}
		for _, sub := range c.submissions {
			for _, h := range sub.handles {
				m.allowLocked(h, c.Creator)
			}
		}
		return nil
	})
}

func (m *Memory) AuthorizeCreatorDecryptDimension(ctx context.Context, campaignID, dimensionIndex uint64) (*types.Receipt, error) {
	return m.authorize(ctx, campaignID, func(c *campaignState) error {
		if c.Creator != m.caller {
			return &RevertError{Name: "Unauthorized"}
		}
		if dimensionIndex >= uint64(len(c.Dimensions)) {
			return &RevertError{Name: "InvalidDimensions"}
		}
		for _, sub := range c.submissions {
			m.allowLocked(sub.handles[dimensionIndex], c.Creator)
		}
		return nil
	})
}

func (m *Memory) AuthorizeOwnDecrypt(ctx context.Context, campaignID uint64) (*types.Receipt, error) {
	return m.authorize(ctx, campaignID, func(c *campaignState) error {
		if !c.rated[m.caller] {
			return &RevertError{Name: "Unauthorized"}
		}
		for _, sub := range c.submissions {
			if sub.rater != m.caller {
				continue
			}
			for _, h := range sub.handles {
				m.allowLocked(h, m.caller)
			}
		}
		return nil
	})
}

func (m *Memory) EndCampaignEarly(ctx context.Context, campaignID uint64) (*types.Receipt, error) {
	return m.authorize(ctx, campaignID, func(c *campaignState) error {
		if c.Creator != m.caller {
			return &RevertError{Name: "Unauthorized"}
		}
		if c.Ended {
			return &RevertError{Name: "ProjectAlreadyEnded"}
		}
		c.Ended = true
		return nil
	})
}

func (m *Memory) authorize(ctx context.Context, campaignID uint64, fn func(c *campaignState) error) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := m.campaignLocked(campaignID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	return m.receiptLocked(), nil
}

func (m *Memory) campaignLocked(id uint64) (*campaignState, error) {
	if id >= uint64(len(m.state.campaigns)) {
		return nil, &RevertError{Name: "ProjectNotFound"}
	}
	return m.state.campaigns[id], nil
}

func (m *Memory) allowLocked(h fhevm.Handle, account common.Address) {
	allowed, ok := m.state.acl[h]
	if !ok {
		allowed = make(map[common.Address]bool)
		m.state.acl[h] = allowed
	}
	allowed[account] = true
}

func (m *Memory) receiptLocked() *types.Receipt {
	m.state.txCount++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], m.state.txCount)
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      crypto.Keccak256Hash(m.address.Bytes(), seed[:]),
		BlockNumber: new(big.Int).SetUint64(m.state.txCount),
	}
}
