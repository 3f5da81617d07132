package models

import (
	"encoding/json"
)

// CheckDescriptor describes one check type as listed by the catalog call.
type CheckDescriptor struct {
	// Identifier of the check, the join key to its result
	ID string

	// Remaining descriptor fields (name, description, category, metadata...)
	// kept as returned by the remote API
	Fields map[string]any
}

// CheckResult is the opaque payload returned for one check.
// An empty, non-nil map is what a failed fetch degrades to.
type CheckResult map[string]any

// EmptyResult returns the value recorded when a check result could not be fetched.
func EmptyResult() CheckResult {
	return CheckResult{}
}

// CheckOutputRecord is the unit written downstream: one check of one account.
type CheckOutputRecord struct {
	// Descriptor of the check the result belongs to
	Check CheckDescriptor

	// Account the check was evaluated for
	AccountID string

	// Result payload, empty when the remote call failed
	Result CheckResult
}

// Flatten merges the descriptor fields with the account and result keys.
// The reserved keys id, account_id and result always win over descriptor fields.
func (r CheckOutputRecord) Flatten() map[string]any {
	out := make(map[string]any, len(r.Check.Fields)+3)
	for k, v := range r.Check.Fields {
		out[k] = v
	}
	out["id"] = r.Check.ID
	out["account_id"] = r.AccountID

	result := r.Result
	if result == nil {
		result = EmptyResult()
	}
	out["result"] = map[string]any(result)
	return out
}

// MarshalJSON encodes the record as a single flat JSON object.
func (r CheckOutputRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}
