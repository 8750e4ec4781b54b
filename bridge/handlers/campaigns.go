package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/ChapmaBeerbohm/crypticscore/bridge/tasks"
	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
)

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CampaignHandlers serves campaign reads and decryption requests.
type CampaignHandlers struct {
	ledger ledger.Ledger
	cache  *tasks.ResultCache
	queue  Enqueuer
	logger log.Logger
	now    func() time.Time
}

// NewCampaignHandlers creates the campaign handlers.
func NewCampaignHandlers(l ledger.Ledger, cache *tasks.ResultCache, queue Enqueuer, logger log.Logger) *CampaignHandlers {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &CampaignHandlers{
		ledger: l,
		cache:  cache,
		queue:  queue,
		logger: logger.With("module", "bridge-handlers"),
		now:    time.Now,
	}
}

func (h *CampaignHandlers) view(c *ledger.Campaign) CampaignView {
	return CampaignView{Campaign: c, Status: c.Status(h.now())}
}

// ListHandler returns every campaign. ?creator= filters by creator address.
func (h *CampaignHandlers) ListHandler(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		campaigns []*ledger.Campaign
		err       error
	)
	if creator := c.QueryParam("creator"); creator != "" {
		if !common.IsHexAddress(creator) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid creator address"})
		}
		campaigns, err = ledger.CampaignsByCreator(ctx, h.ledger, common.HexToAddress(creator))
	} else {
		campaigns, err = ledger.ListCampaigns(ctx, h.ledger)
	}
	if err != nil {
		return writeError(c, err)
	}

	views := make([]CampaignView, len(campaigns))
	for i, cp := range campaigns {
		views[i] = h.view(cp)
	}
	return c.JSON(http.StatusOK, views)
}

// GetHandler returns one campaign.
func (h *CampaignHandlers) GetHandler(c echo.Context) error {
	id, err := campaignID(c)
	if err != nil {
		return writeError(c, err)
	}
	cp, err := h.ledger.GetCampaign(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(cp))
}

// SummaryHandler returns the latest cached decryption of a campaign.
func (h *CampaignHandlers) SummaryHandler(c echo.Context) error {
	id, err := campaignID(c)
	if err != nil {
		return writeError(c, err)
	}
	res, ok := h.cache.Get(id)
	if !ok {
		return writeError(c, ErrNoResults)
	}
	return c.JSON(http.StatusOK, res)
}

// DecryptHandler enqueues a campaign decryption. Requires a token with
// PermissionDecrypt.
func (h *CampaignHandlers) DecryptHandler(c echo.Context) error {
	claims, ok := claimsFrom(c)
	if !ok || !claims.Has(PermissionDecrypt) {
		return writeError(c, ErrMissingPermission)
	}

	id, err := campaignID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	if _, err := h.ledger.GetCampaign(ctx, id); err != nil {
		return writeError(c, err)
	}

	task, taskID, err := tasks.NewDecryptTask(id, claims.Subject)
	if err != nil {
		return writeError(c, err)
	}
	// a worker may finish before EnqueueContext returns
	h.cache.MarkPending(id, taskID)
	if _, err := h.queue.EnqueueContext(ctx, task, asynq.Queue("default")); err != nil {
		h.cache.Fail(id, taskID, err)
		h.logger.Error("Failed to enqueue decryption", "campaign", id, "error", err)
		return writeError(c, err)
	}

	h.logger.Info("Decryption enqueued", "campaign", id, "task", taskID, "subject", claims.Subject)
	return c.JSON(http.StatusAccepted, DecryptResponse{
		TaskID:     taskID,
		CampaignID: id,
		State:      tasks.StatePending,
	})
}

func campaignID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, ErrInvalidCampaignID
	}
	return id, nil
}
