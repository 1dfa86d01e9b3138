// Package executor defines the closed set of supported coding-agent CLIs.
// Each kind is represented by a Profile that locates the installed binary,
// builds deterministic argument lists for initial and follow-up invocations,
// and translates the tool's raw output into normalized entries.
package executor

import (
	"strings"

	"github.com/gosuda/corral/internal/domain"
)

// Kind identifies a supported agent CLI.
type Kind string

const (
	KindClaude   Kind = "claude"
	KindCodex    Kind = "codex"
	KindOpenCode Kind = "opencode"
)

// Overrides are caller-supplied adjustments to the generated argument list.
// They are merged in a stable order so the same inputs always produce the
// same command line: resume/rewind markers first, then model, then
// full-auto, then extra args, with the prompt always last.
type Overrides struct {
	Model     string
	FullAuto  bool
	ExtraArgs []string
}

// Invocation describes one command to build: a fresh prompt, or a follow-up
// resuming the agent's own session, optionally rewound to an earlier message.
type Invocation struct {
	Prompt            string
	FollowUp          bool
	NativeSessionID   string // required when FollowUp is set
	RewindToMessageID string // optional, follow-up only
	Overrides         Overrides
}

// Profile is the capability interface one agent kind implements.
type Profile interface {
	// Kind returns the executor kind this profile serves.
	Kind() Kind

	// ResolveExecutable locates the installed binary on the current system.
	// Returns domain.ErrNotInstalled (wrapped) when it cannot be found; this
	// is a reportable condition the caller surfaces, not a fault.
	ResolveExecutable() (string, error)

	// BuildArgs produces the ordered argument list for an invocation.
	// Deterministic: identical invocations yield identical slices.
	BuildArgs(inv Invocation) []string

	// NewNormalizer returns a fresh per-process normalizer. Normalizer state
	// (partial-record buffering) must never be shared across processes.
	NewNormalizer() Normalizer
}

// Normalizer translates raw output chunks into normalized entries. A chunk
// may complete a record buffered from an earlier chunk, contain several
// records, or carry no structured meaning at all. Unparseable input is
// passed through as an unstructured entry or skipped, never surfaced as an
// error: a broken line must not abort the stream.
type Normalizer interface {
	// Normalize consumes one chunk tagged with the sequence number its log
	// line was assigned, returning zero or more entries.
	Normalize(seq uint64, chunk string) []domain.NormalizedEntry

	// Flush drains any buffered partial record at end of stream.
	Flush() []domain.NormalizedEntry
}

// lineBuffer assembles newline-delimited records from arbitrarily split
// chunks, tracking the sequence range each record spans.
type lineBuffer struct {
	partial  strings.Builder
	firstSeq uint64
	lastSeq  uint64
}

// record is one complete line plus the store sequence range it was
// reassembled from.
type record struct {
	text     string
	firstSeq uint64
	lastSeq  uint64
}

// feed appends a chunk and returns the records completed by it. A trailing
// segment without a newline stays buffered for a later chunk.
func (b *lineBuffer) feed(seq uint64, chunk string) []record {
	if b.partial.Len() == 0 {
		b.firstSeq = seq
	}
	b.lastSeq = seq

	data := b.partial.String() + chunk
	b.partial.Reset()

	var out []record
	start := b.firstSeq
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		out = append(out, record{text: data[:idx], firstSeq: start, lastSeq: seq})
		data = data[idx+1:]
		start = seq
	}

	if data != "" {
		b.partial.WriteString(data)
		b.firstSeq = start
	}

	return out
}

// flush returns the buffered partial record, if any, as a final record.
func (b *lineBuffer) flush() []record {
	if b.partial.Len() == 0 {
		return nil
	}

	rec := record{text: b.partial.String(), firstSeq: b.firstSeq, lastSeq: b.lastSeq}
	b.partial.Reset()

	return []record{rec}
}
