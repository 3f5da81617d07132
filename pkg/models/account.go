package models

import (
	"fmt"
	"time"
)

// EntryIDPrefix is prepended to an account id to build its queue entry id.
const EntryIDPrefix = "id-"

// QueueEntry is one account submitted to the work queue.
type QueueEntry struct {
	// Dedupe/identity key of the entry, derived from the account id
	ID string `json:"id"`

	// Message body: the account id itself
	Body string `json:"body"`
}

// NewQueueEntry builds the entry for an account id.
// The same account always yields the same entry id.
func NewQueueEntry(accountID string) QueueEntry {
	return QueueEntry{
		ID:   EntryIDPrefix + accountID,
		Body: accountID,
	}
}

// EntryFailure reports one rejected entry of a batch submission.
type EntryFailure struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult is the per-entry breakdown of a batch submission.
type BatchResult struct {
	Successful []string       `json:"successful"`
	Failed     []EntryFailure `json:"failed"`
}

// String renders the full response for error logs.
func (r BatchResult) String() string {
	return fmt.Sprintf("successful=%v failed=%+v", r.Successful, r.Failed)
}

// AccountRun summarizes the processing of one account by the collector.
type AccountRun struct {
	// Collector invocation this run belongs to
	RunID string `json:"run_id"`

	// Target (member) account
	AccountID string `json:"account_id"`

	// Number of checks returned by the catalog
	Checks int `json:"checks"`

	// Number of records in the output document
	Records int `json:"records"`

	// Object key the document was written to, empty when nothing was written
	ObjectKey string `json:"object_key,omitempty"`

	// One of the RunStatus constants
	Status string `json:"status"`

	// Error text when Status is a failure
	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Account run statuses.
const (
	RunWritten          = "written"
	RunEmpty            = "empty"
	RunDelegationFailed = "delegation_failed"
	RunStoreFailed      = "store_failed"
)
