// Package notify formats change and conflict outcomes into human-readable
// messages and dispatches them through a notification sink. Dispatch is
// explicitly best-effort: failures are logged, counted, and never surfaced
// to the tracking flow.
package notify

import (
	"fmt"
	"time"
)

// TruncateBudget is the character budget for old/new content excerpts in
// change notifications.
const TruncateBudget = 200

// Payload kinds.
const (
	KindChange   = "change"
	KindConflict = "conflict"
)

// Resolution values understood by FormatConflict.
const (
	ResolutionManual = "manual"
	ResolutionAuto   = "auto"
	ResolutionIgnore = "ignore"
)

// Payload is one notification to deliver.
type Payload struct {
	Kind        string    `json:"kind"`
	ReferenceID string    `json:"reference_id"`
	Owner       string    `json:"owner"`
	Repo        string    `json:"repo"`
	FilePath    string    `json:"file_path"`
	Message     string    `json:"message"`
	Confidence  float64   `json:"confidence,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// FormatConflict maps a conflict type and resolution requirement to a
// templated message. Unknown resolutions are echoed verbatim rather than
// rejected, so new resolution kinds degrade readably.
func FormatConflict(conflictType, resolution string) string {
	var action string
	switch resolution {
	case ResolutionManual:
		action = "manual intervention needed"
	case ResolutionAuto:
		action = "automatically resolved"
	case ResolutionIgnore:
		action = "marked as ignored"
	default:
		action = fmt.Sprintf("unrecognized resolution %q", resolution)
	}
	return fmt.Sprintf("code reference conflict (%s): %s", conflictType, action)
}

// FormatChange summarizes an old/new content pair, truncating each side to
// the character budget.
func FormatChange(oldContent, newContent string) string {
	return fmt.Sprintf("referenced code changed\nold: %s\nnew: %s",
		Truncate(oldContent, TruncateBudget),
		Truncate(newContent, TruncateBudget))
}

// Truncate cuts s to at most budget characters, appending an ellipsis
// marker when content was dropped.
func Truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	return s[:budget] + "..."
}
