// Package handlers provides HTTP handlers for the results bridge.
package handlers

import (
	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
)

// CampaignView is a campaign with its status at request time.
type CampaignView struct {
	*ledger.Campaign
	Status string `json:"status"`
}

// DecryptResponse acknowledges an enqueued decryption.
type DecryptResponse struct {
	TaskID     string `json:"task_id"`
	CampaignID uint64 `json:"campaign_id"`
	State      string `json:"state"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}
