package tasks

import (
	"sync"
	"time"

	"github.com/ChapmaBeerbohm/crypticscore/client"
)

// Result is the latest decryption outcome of one campaign.
type Result struct {
	CampaignID uint64          `json:"campaignId"`
	TaskID     string          `json:"taskId"`
	State      string          `json:"state"`
	Error      string          `json:"error,omitempty"`
	Results    *client.Results `json:"results,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ResultCache holds decryption results by campaign. Only the task last marked
// pending for a campaign may write its outcome.
type ResultCache struct {
	mu      sync.RWMutex
	results map[uint64]Result
	now     func() time.Time
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		results: make(map[uint64]Result),
		now:     time.Now,
	}
}

// Get returns the cached result for campaignID.
func (c *ResultCache) Get(campaignID uint64) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[campaignID]
	return r, ok
}

// MarkPending records that taskID will decrypt campaignID. Results of a
// previous run stay readable until the new run completes.
func (c *ResultCache) MarkPending(campaignID uint64, taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.results[campaignID]
	r.CampaignID = campaignID
	r.TaskID = taskID
	r.State = StatePending
	r.Error = ""
	r.UpdatedAt = c.now()
	c.results[campaignID] = r
}

// Complete stores the results of taskID. It reports false, leaving the cache
// unchanged, when another task has been marked pending since.
func (c *ResultCache) Complete(campaignID uint64, taskID string, res *client.Results) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.superseded(campaignID, taskID) {
		return false
	}
	c.results[campaignID] = Result{
		CampaignID: campaignID,
		TaskID:     taskID,
		State:      StateDone,
		Results:    res,
		UpdatedAt:  c.now(),
	}
	return true
}

// Fail records the failure of taskID, keeping earlier results. Like Complete
// it ignores superseded tasks.
func (c *ResultCache) Fail(campaignID uint64, taskID string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.superseded(campaignID, taskID) {
		return false
	}
	r := c.results[campaignID]
	r.CampaignID = campaignID
	r.TaskID = taskID
	r.State = StateFailed
	r.Error = err.Error()
	r.UpdatedAt = c.now()
	c.results[campaignID] = r
	return true
}

// superseded reports whether a task other than taskID owns the campaign entry.
// Tasks outliving the cache, such as after a restart, are accepted.
func (c *ResultCache) superseded(campaignID uint64, taskID string) bool {
	r, ok := c.results[campaignID]
	return ok && r.TaskID != taskID
}
