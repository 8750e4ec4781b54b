package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ChapmaBeerbohm/crypticscore/client"
	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// Decrypter produces the decrypted results of a campaign. *client.SDK
// satisfies it.
type Decrypter interface {
	Results(ctx context.Context, campaignID uint64) (*client.Results, error)
}

// ╭─────────────────────────────────────────────────────────╮
// │                      Processor                          │
// ╰─────────────────────────────────────────────────────────╯

// DecryptProcessor implements asynq.Handler for campaign decryption.
type DecryptProcessor struct {
	decrypter Decrypter
	cache     *ResultCache
	logger    log.Logger
}

// NewDecryptProcessor creates a processor storing its results in cache.
func NewDecryptProcessor(d Decrypter, cache *ResultCache, logger log.Logger) *DecryptProcessor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &DecryptProcessor{
		decrypter: d,
		cache:     cache,
		logger:    logger.With("module", "decrypt-task"),
	}
}

// ╭─────────────────────────────────────────────────────────╮
// │                      Payload                            │
// ╰─────────────────────────────────────────────────────────╯

// DecryptPayload contains parameters for a campaign decryption task.
type DecryptPayload struct {
	TaskID      string `json:"task_id"`
	CampaignID  uint64 `json:"campaign_id"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewDecryptTask creates a campaign decryption task with a fresh task id.
func NewDecryptTask(campaignID uint64, requestedBy string) (*asynq.Task, string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(DecryptPayload{
		TaskID:      id,
		CampaignID:  campaignID,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return nil, "", err
	}
	return asynq.NewTask(TypeCampaignDecrypt, payload,
		asynq.TaskID(id),
		asynq.Timeout(KDecryptTimeout),
	), id, nil
}

// ╭─────────────────────────────────────────────────────────╮
// │                      Handler                            │
// ╰─────────────────────────────────────────────────────────╯

// ProcessTask decrypts the campaign and caches the results. Reverts are not
// retried: they only clear once the campaign creator grants access.
func (p *DecryptProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DecryptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger := p.logger.With("campaign", payload.CampaignID, "task", payload.TaskID)
	logger.Info("Decrypting campaign", "requested_by", payload.RequestedBy)

	res, err := p.decrypter.Results(ctx, payload.CampaignID)
	if err != nil {
		logger.Error("Campaign decryption failed", "error", err)
		if !p.cache.Fail(payload.CampaignID, payload.TaskID, err) {
			logger.Info("Decryption superseded by a newer task")
			return nil
		}
		if clienterrors.IsRevert(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if !p.cache.Complete(payload.CampaignID, payload.TaskID, res) {
		logger.Info("Discarding results of superseded decryption")
		return nil
	}
	logger.Info("Campaign decrypted", "records", len(res.Records))
	return nil
}
