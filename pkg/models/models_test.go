package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	cause := errors.New("access denied")
	err := NewError(DelegationFailed, "assume role arn:aws:iam::1:role/x", cause)
	err.Status = 403

	assert.Equal(t, "DelegationFailed: assume role arn:aws:iam::1:role/x (status 403): access denied", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("account 1: %w", err)
	assert.True(t, IsKind(wrapped, DelegationFailed))
	assert.False(t, IsKind(wrapped, TaskFault))
	assert.False(t, IsKind(cause, DelegationFailed))

	assert.Equal(t, "QueueEntryFailure: send batch", NewError(QueueEntryFailure, "send batch", nil).Error())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestNewQueueEntry(t *testing.T) {
	e := NewQueueEntry("111222333444")
	assert.Equal(t, QueueEntry{ID: "id-111222333444", Body: "111222333444"}, e)
	assert.Equal(t, e, NewQueueEntry("111222333444"))
}

func TestCheckOutputRecord_MarshalJSON(t *testing.T) {
	r := CheckOutputRecord{
		Check:     CheckDescriptor{ID: "c1", Fields: map[string]any{"name": "Security Groups", "metadata": []any{"a"}}},
		AccountID: "123456789012",
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, map[string]any{
		"id":         "c1",
		"name":       "Security Groups",
		"metadata":   []any{"a"},
		"account_id": "123456789012",
		"result":     map[string]any{},
	}, obj)
}

func TestScopedIdentity(t *testing.T) {
	exec := ScopedIdentity{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret"}
	assert.False(t, exec.Delegated())

	role := ScopedIdentity{AccessKeyID: "ASIAEXAMPLE", SecretAccessKey: "secret", Expires: time.Now().Add(time.Hour)}
	assert.True(t, role.Delegated())
	assert.NotContains(t, role.String(), "secret")
	assert.NotContains(t, role.String(), "ASIAEXAMPLE")
}

func TestBatchResult_String(t *testing.T) {
	r := BatchResult{
		Successful: []string{"id-1"},
		Failed:     []EntryFailure{{ID: "id-2", Code: "InternalError", Message: "retry"}},
	}
	assert.Contains(t, r.String(), "id-2")
	assert.Contains(t, r.String(), "InternalError")
}
