package executor

import (
	"encoding/json"
	"strings"

	"github.com/gosuda/corral/internal/domain"
)

// parseGenericRecord handles the lowest-common-denominator structured form:
// a JSON object carrying an "action" field, as emitted by simpler agent
// wrappers. Returns false when the line does not match.
func parseGenericRecord(rec record) (domain.NormalizedEntry, bool) {
	var ev struct {
		Action string `json:"action"`
		Path   string `json:"path"`
		Line   int    `json:"line"`
		Error  string `json:"error"`
	}

	if err := json.Unmarshal([]byte(rec.text), &ev); err != nil || ev.Action == "" {
		return domain.NormalizedEntry{}, false
	}

	return domain.NormalizedEntry{
		Kind:      domain.ActionKind(ev.Action),
		Path:      ev.Path,
		Line:      ev.Line,
		ErrorText: ev.Error,
		FirstSeq:  rec.firstSeq,
		LastSeq:   rec.lastSeq,
	}, true
}

// passthroughEntry wraps a line that carries no structured meaning.
func passthroughEntry(rec record) domain.NormalizedEntry {
	return domain.NormalizedEntry{
		Kind:     domain.ActionMessage,
		Content:  rec.text,
		FirstSeq: rec.firstSeq,
		LastSeq:  rec.lastSeq,
	}
}

// stringField extracts a top-level string field from a raw JSON object.
// Used for loosely-typed tool inputs.
func stringField(raw json.RawMessage, field string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}

	var s string
	if err := json.Unmarshal(m[field], &s); err != nil {
		return ""
	}

	return s
}

// skippable reports whether a line should be dropped before parsing.
func skippable(rec record) bool {
	return strings.TrimSpace(rec.text) == ""
}
