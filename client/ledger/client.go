package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
	"github.com/ChapmaBeerbohm/crypticscore/client/keys"
)

// Backend is the node API used by Client. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Client is the RatingManager ledger backed by a JSON-RPC node.
// Transactions are never retried; a revert surfaces as a *RevertError.
type Client struct {
	backend        Backend
	address        common.Address
	signer         keys.Signer
	abi            abi.ABI
	gas            GasConfig
	receiptTimeout time.Duration
	now            func() time.Time
	logger         log.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

var _ Ledger = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithGasConfig sets the gas adjustment and ceiling.
func WithGasConfig(cfg GasConfig) ClientOption {
	return func(c *Client) {
		c.gas = cfg
	}
}

// WithReceiptTimeout bounds the wait for transaction inclusion.
func WithReceiptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.receiptTimeout = d
	}
}

// WithClock overrides the time used to validate new campaigns.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient binds the contract at address. signer may be nil for read-only use.
func NewClient(backend Backend, address common.Address, signer keys.Signer, opts ...ClientOption) (*Client, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse RatingManager ABI: %w", err)
	}
	c := &Client{
		backend:        backend,
		address:        address,
		signer:         signer,
		abi:            parsed,
		gas:            GasConfig{Adjustment: 1.2, MaxGasLimit: 10_000_000},
		receiptTimeout: time.Minute,
		now:            time.Now,
		logger:         log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("module", "ledger", "contract", address.Hex())
	return c, nil
}

// Dial connects to rpcURL and binds the contract at address.
func Dial(ctx context.Context, rpcURL string, address common.Address, signer keys.Signer, opts ...ClientOption) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrProviderUnavailable, "failed to dial %s", rpcURL)
	}
	return NewClient(eth, address, signer, opts...)
}

func (c *Client) Address() common.Address { return c.address }

func (c *Client) CreateCampaign(ctx context.Context, params CampaignParams) (uint64, *types.Receipt, error) {
	if err := params.Validate(c.now()); err != nil {
		return 0, nil, err
	}

	receipt, err := c.transact(ctx, "createRatingProject",
		params.Name,
		params.Description,
		params.Dimensions,
		params.ScaleMax,
		big.NewInt(params.EndTime.Unix()),
		params.AllowMultiple,
	)
	if err != nil {
		return 0, nil, err
	}

	event := c.abi.Events["RatingProjectCreated"]
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		id := new(big.Int).SetBytes(l.Topics[1].Bytes())
		return id.Uint64(), receipt, nil
	}
	return 0, receipt, clienterrors.NewLedgerError("createRatingProject", errors.New("RatingProjectCreated event not found in receipt"))
}

func (c *Client) SubmitEncryptedRating(ctx context.Context, campaignID uint64, handles []fhevm.Handle, inputProof []byte) (*types.Receipt, error) {
	scores := make([][32]byte, len(handles))
	for i, h := range handles {
		scores[i] = h.Bytes32()
	}
	return c.transact(ctx, "submitRating", u256(campaignID), scores, inputProof)
}

func (c *Client) GetCampaign(ctx context.Context, campaignID uint64) (*Campaign, error) {
	out, err := c.call(ctx, "getProject", u256(campaignID))
	if err != nil {
		return nil, err
	}
	p := abi.ConvertType(out[0], new(projectTuple)).(*projectTuple)
	return p.campaign(), nil
}

func (c *Client) GetCampaignCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "projectCount")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

func (c *Client) HasSubmitted(ctx context.Context, campaignID uint64, account common.Address) (bool, error) {
	out, err := c.call(ctx, "userHasRated", u256(campaignID), account)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *Client) GetSubmissionCount(ctx context.Context, campaignID uint64) (uint64, error) {
	out, err := c.call(ctx, "getProjectRatingCount", u256(campaignID))
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

func (c *Client) GetScoreHandle(ctx context.Context, campaignID, submissionIndex, dimensionIndex uint64) (fhevm.Handle, error) {
	out, err := c.call(ctx, "getRatingScore", u256(campaignID), u256(submissionIndex), u256(dimensionIndex))
	if err != nil {
		return "", err
	}
	raw := out[0].([32]byte)
	if raw == ([32]byte{}) {
		return "", nil
	}
	return fhevm.HandleFromBytes32(raw), nil
}

func (c *Client) AuthorizeCreatorDecryptAll(ctx context.Context, campaignID uint64) (*types.Receipt, error) {
	return c.transact(ctx, "allowCreatorDecryptAll", u256(campaignID))
}

func (c *Client) AuthorizeCreatorDecryptDimension(ctx context.Context, campaignID, dimensionIndex uint64) (*types.Receipt, error) {
	return c.transact(ctx, "allowCreatorDecryptDimension", u256(campaignID), u256(dimensionIndex))
}

func (c *Client) AuthorizeOwnDecrypt(ctx context.Context, campaignID uint64) (*types.Receipt, error) {
	return c.transact(ctx, "allowUserDecryptOwnRating", u256(campaignID))
}

func (c *Client) EndCampaignEarly(ctx context.Context, campaignID uint64) (*types.Receipt, error) {
	return c.transact(ctx, "endProject", u256(campaignID))
}

func (c *Client) from() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, clienterrors.NewLedgerError(method, err)
	}
	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from(), To: &c.address, Data: input}, nil)
	if err != nil {
		return nil, c.callError(method, err)
	}
	out, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, clienterrors.NewLedgerError(method, err)
	}
	return out, nil
}

func (c *Client) transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	if c.signer == nil {
		return nil, clienterrors.WrapError(errors.New("no signer configured"), clienterrors.ErrMissingConfig, "cannot send %s", method)
	}
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, clienterrors.NewLedgerError(method, err)
	}
	from := c.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &c.address, Data: input}

	// Surface reverts before anything is signed.
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, c.callError(method, err)
	}

	est, err := estimateGas(ctx, c.backend, c.gas, msg)
	if err != nil {
		return nil, c.callError(method, err)
	}
	chainID, err := c.chain(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, clienterrors.NewLedgerError(method, fmt.Errorf("failed to retrieve nonce: %w", err))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: est.GasTipCap,
		GasFeeCap: est.GasFeeCap,
		Gas:       est.GasLimit,
		To:        &c.address,
		Value:     big.NewInt(0),
		Data:      input,
	})
	signed, err := c.signer.SignTx(ctx, tx, chainID)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrSigningFailed, "failed to sign %s", method)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, c.callError(method, err)
	}
	c.logger.Info("Transaction sent", "method", method, "tx", signed.Hash().Hex(), "gas", est.GasLimit)

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, signed)
	if err != nil {
		return nil, clienterrors.NewLedgerError(method, fmt.Errorf("failed to wait for transaction %s: %w", signed.Hash().Hex(), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, clienterrors.NewLedgerError(method, fmt.Errorf("transaction %s reverted", receipt.TxHash.Hex()))
	}

	c.logger.Debug("Transaction mined", "method", method, "tx", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

func (c *Client) chain(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrProviderUnavailable, "failed to read chain id")
	}
	c.chainID = id
	return id, nil
}

// callError decodes revert data carried by err, falling back to a plain ledger error.
func (c *Client) callError(method string, err error) error {
	if data := revertData(err); len(data) >= 4 {
		for name, e := range c.abi.Errors {
			if bytes.Equal(data[:4], e.ID[:4]) {
				return &RevertError{Name: name}
			}
		}
		if reason, uerr := abi.UnpackRevert(data); uerr == nil {
			return clienterrors.NewLedgerError(method, errors.New(reason))
		}
	}
	return clienterrors.NewLedgerError(method, err)
}

func revertData(err error) []byte {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil
	}
	switch v := de.ErrorData().(type) {
	case string:
		b, derr := hexutil.Decode(strings.TrimSpace(v))
		if derr != nil {
			return nil
		}
		return b
	case []byte:
		return v
	}
	return nil
}
