// Package decrypt collects the score handles of a campaign and decrypts them
// in a single batched user decryption.
package decrypt

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
	"github.com/ChapmaBeerbohm/crypticscore/client/keys"
	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
)

const (
	// DefaultConcurrency bounds in-flight ledger reads.
	DefaultConcurrency = 8
	// DefaultMaxHandles caps the submissions times dimensions of one campaign.
	DefaultMaxHandles = 1 << 16
)

// ScoreRecord holds the decrypted scores of one submission. Missing lists the
// dimensions whose value could not be decrypted; their score is 0.
type ScoreRecord struct {
	ParticipantIndex uint64  `json:"participantIndex"`
	Scores           []int64 `json:"scores"`
	Missing          []int   `json:"missing,omitempty"`
}

// Scores returns the raw score vectors of records, the input of stats.Summarize.
func Scores(records []ScoreRecord) [][]int64 {
	out := make([][]int64, len(records))
	for i, r := range records {
		out[i] = r.Scores
	}
	return out
}

// CredentialSource obtains decryption credentials. *keys.Manager implements it.
type CredentialSource interface {
	Obtain(ctx context.Context, inst fhevm.Instance, contracts []common.Address, signer keys.Signer) (*keys.Credential, error)
}

// Orchestrator decrypts campaign scores on behalf of one signer.
//
// Concurrent calls for the same campaign are not deduplicated and each issues
// its own decryption request.
type Orchestrator struct {
	instance    fhevm.Instance
	ledger      ledger.Ledger
	credentials CredentialSource
	signer      keys.Signer
	concurrency int
	maxHandles  int
	logger      log.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds the number of concurrent handle reads.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxHandles caps the number of score handles a campaign may have before
// DecryptCampaignScores refuses to read it.
func WithMaxHandles(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxHandles = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(inst fhevm.Instance, l ledger.Ledger, credentials CredentialSource, signer keys.Signer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		instance:    inst,
		ledger:      l,
		credentials: credentials,
		signer:      signer,
		concurrency: DefaultConcurrency,
		maxHandles:  DefaultMaxHandles,
		logger:      log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("module", "decrypt")
	return o
}

type position struct {
	rating    uint64
	dimension int
}

// DecryptCampaignScores decrypts every stored score of a campaign. It returns
// an empty slice, without requesting a credential, when nothing was submitted.
// Records are ordered by participant index.
func (o *Orchestrator) DecryptCampaignScores(ctx context.Context, campaignID uint64, dimensions int) ([]ScoreRecord, error) {
	if dimensions <= 0 {
		return nil, clienterrors.WrapError(fmt.Errorf("%d", dimensions), clienterrors.ErrInvalidDimensions, "dimension count must be positive")
	}

	count, err := o.ledger.GetSubmissionCount(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if count > uint64(o.maxHandles/dimensions) {
		return nil, clienterrors.WrapError(
			fmt.Errorf("%d submissions of %d dimensions", count, dimensions),
			clienterrors.ErrLedger, "campaign %d exceeds %d score handles", campaignID, o.maxHandles)
	}

	handles := make([]fhevm.Handle, int(count)*dimensions)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for r := uint64(0); r < count; r++ {
		for d := 0; d < dimensions; d++ {
			slot := int(r)*dimensions + d
			g.Go(func() error {
				h, err := o.ledger.GetScoreHandle(gctx, campaignID, r, uint64(d))
				if err != nil {
					return err
				}
				handles[slot] = h
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	contract := o.ledger.Address()
	positions := make(map[fhevm.Handle]position)
	var pairs []fhevm.HandleContractPair
	for slot, h := range handles {
		if h.IsZero() {
			continue
		}
		positions[h] = position{rating: uint64(slot / dimensions), dimension: slot % dimensions}
		pairs = append(pairs, fhevm.HandleContractPair{Handle: h, Contract: contract})
	}
	if len(pairs) == 0 {
		o.logger.Debug("No handles to decrypt", "campaign", campaignID, "submissions", count)
		return []ScoreRecord{}, nil
	}

	values, err := o.decrypt(ctx, pairs)
	if err != nil {
		return nil, err
	}

	records := make(map[uint64]*ScoreRecord)
	decoded := make(map[position]bool)
	for h, pos := range positions {
		rec, ok := records[pos.rating]
		if !ok {
			rec = &ScoreRecord{ParticipantIndex: pos.rating, Scores: make([]int64, dimensions)}
			records[pos.rating] = rec
		}
		if v, ok := toInt64(values[h]); ok {
			rec.Scores[pos.dimension] = v
			decoded[pos] = true
		}
	}

	out := make([]ScoreRecord, 0, len(records))
	missing := 0
	for _, rec := range records {
		for d := 0; d < dimensions; d++ {
			if !decoded[position{rating: rec.ParticipantIndex, dimension: d}] {
				rec.Missing = append(rec.Missing, d)
			}
		}
		missing += len(rec.Missing)
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantIndex < out[j].ParticipantIndex })

	if missing > 0 {
		o.logger.Info("Some scores could not be decrypted", "campaign", campaignID, "missing", missing)
	}
	o.logger.Debug("Decrypted campaign scores", "campaign", campaignID, "records", len(out), "handles", len(pairs))
	return out, nil
}

// DecryptHandle decrypts a single handle held by the ledger contract.
func (o *Orchestrator) DecryptHandle(ctx context.Context, h fhevm.Handle) (any, error) {
	values, err := o.decrypt(ctx, []fhevm.HandleContractPair{{Handle: h, Contract: o.ledger.Address()}})
	if err != nil {
		return nil, err
	}
	v, ok := values[h]
	if !ok {
		return nil, clienterrors.WrapError(fmt.Errorf("handle %s", h), clienterrors.ErrDecryption, "no value returned")
	}
	return v, nil
}

func (o *Orchestrator) decrypt(ctx context.Context, pairs []fhevm.HandleContractPair) (map[fhevm.Handle]any, error) {
	cred, err := o.credentials.Obtain(ctx, o.instance, []common.Address{o.ledger.Address()}, o.signer)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, clienterrors.WrapError(fmt.Errorf("signer %s", o.signer.Address().Hex()), clienterrors.ErrCredentialUnavailable, "cannot decrypt now")
	}
	return o.instance.UserDecrypt(ctx, cred.DecryptRequest(pairs))
}

func toInt64(v any) (int64, bool) {
	n, ok := v.(*big.Int)
	if !ok || n == nil || !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}
