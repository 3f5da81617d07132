package output

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

func record(id string, result models.CheckResult) models.CheckOutputRecord {
	return models.CheckOutputRecord{
		Check:     models.CheckDescriptor{ID: id, Fields: map[string]any{"name": "Check " + id, "category": "security"}},
		AccountID: "123456789012",
		Result:    result,
	}
}

func TestFormat_OneLinePerRecord(t *testing.T) {
	records := []models.CheckOutputRecord{
		record("c1", models.CheckResult{"status": "ok"}),
		record("c2", models.EmptyResult()),
		record("c3", nil),
	}

	doc, err := Format(records)
	require.NoError(t, err)

	assert.Equal(t, len(records), strings.Count(doc, "\n"))
	assert.True(t, strings.HasSuffix(doc, "\n"))
	assert.False(t, strings.HasPrefix(doc, "["))

	lines := strings.Split(strings.TrimSuffix(doc, "\n"), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &obj), "line %d", i)
		assert.Equal(t, records[i].Check.ID, obj["id"])
		assert.Equal(t, "123456789012", obj["account_id"])
		assert.Equal(t, "security", obj["category"])
		assert.IsType(t, map[string]any{}, obj["result"])
	}
}

func TestFormat_Empty(t *testing.T) {
	doc, err := Format(nil)
	require.NoError(t, err)
	assert.Equal(t, "", doc)
}

func TestFormat_TimeValuesAsText(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 15, 123000000, time.UTC)
	refreshed := ts.Add(time.Minute)
	records := []models.CheckOutputRecord{
		record("c1", models.CheckResult{
			"timestamp": ts,
			"summary":   map[string]any{"refreshedAt": &refreshed},
			"resources": []any{map[string]any{"seen": ts}},
		}),
	}

	doc, err := Format(records)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &obj))
	result := obj["result"].(map[string]any)

	got, err := time.Parse(TimeLayout, result["timestamp"].(string))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))

	summary := result["summary"].(map[string]any)
	assert.Equal(t, refreshed.Format(TimeLayout), summary["refreshedAt"])

	resources := result["resources"].([]any)
	assert.Equal(t, ts.Format(TimeLayout), resources[0].(map[string]any)["seen"])
}

func TestFormat_NoHTMLEscaping(t *testing.T) {
	doc, err := Format([]models.CheckOutputRecord{
		record("c1", models.CheckResult{"description": "<b>Low</b> & high"}),
	})
	require.NoError(t, err)
	assert.Contains(t, doc, "<b>Low</b> & high")
}

func TestFormat_BadRecordIsReported(t *testing.T) {
	records := []models.CheckOutputRecord{
		record("good", models.CheckResult{"status": "ok"}),
		record("bad", models.CheckResult{"score": math.Inf(1)}),
	}

	doc, err := Format(records)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 1, strings.Count(doc, "\n"))
	assert.Contains(t, doc, `"id":"good"`)
}

func TestFormat_ReservedKeysWin(t *testing.T) {
	r := record("c1", models.CheckResult{})
	r.Check.Fields["account_id"] = "spoofed"
	r.Check.Fields["id"] = "other"

	doc, err := Format([]models.CheckOutputRecord{r})
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &obj))
	assert.Equal(t, "c1", obj["id"])
	assert.Equal(t, "123456789012", obj["account_id"])
}
