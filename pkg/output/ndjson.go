// Package output serializes collected check records into the newline
// delimited JSON layout expected by Glue/Athena: one object per line, every
// line newline-terminated, no enclosing array and no separators.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// ContentType of a formatted document.
const ContentType = "application/json"

// TimeLayout is how date/time values are written.
const TimeLayout = time.RFC3339Nano

// Format renders records as one JSON line each. Zero records give "".
// A record that cannot be encoded is left out and reported in the returned
// error; the other records are still formatted.
func Format(records []models.CheckOutputRecord) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var errs []error
	for _, r := range records {
		line := normalize(r.Flatten())
		if err := enc.Encode(line); err != nil {
			errs = append(errs, fmt.Errorf("record %s/%s: %w", r.AccountID, r.Check.ID, err))
		}
	}
	return buf.String(), errors.Join(errs...)
}

// normalize rewrites date/time values into text timestamps so that every
// encoder, and every reader, sees the same representation.
func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(TimeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(TimeLayout)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case models.CheckResult:
		return normalize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
