// Package tasks provides background campaign decryption jobs for the results
// bridge.
package tasks

import "time"

// KDecryptTimeout bounds a single campaign decryption.
const KDecryptTimeout = 2 * time.Minute

// A list of task types.
const (
	TypeCampaignDecrypt = "campaign:decrypt" // Decrypt and summarize a campaign
)

// Result states kept in the ResultCache.
const (
	StatePending = "pending"
	StateDone    = "done"
	StateFailed  = "failed"
)
