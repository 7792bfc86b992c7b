// Package reference defines the value records tracked by tether: code
// references pointing into repository files, and the change events that
// drive their re-validation. Records are plain immutable values; state
// transitions are pure functions composed by the change tracker and
// persisted by the storage layer.
package reference

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies what a reference points at.
type Type string

const (
	TypeLine     Type = "line"
	TypeRange    Type = "range"
	TypeFunction Type = "function"
)

// Status is the lifecycle state of a reference.
type Status string

const (
	StatusActive   Status = "active"
	StatusDeleted  Status = "deleted"
	StatusConflict Status = "conflict"
)

// CodeReference is a tracked pointer from a document into a repository file.
type CodeReference struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	FilePath string `json:"file_path"`
	Type     Type   `json:"type"`

	// Positional fields. StartLine/EndLine apply to line and range
	// references; FunctionName (optionally scoped by ClassName) applies
	// to function references.
	StartLine    int    `json:"start_line,omitempty"`
	EndLine      int    `json:"end_line,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	ClassName    string `json:"class_name,omitempty"`

	// Snapshot of the referenced code as of the last successful extraction.
	Content     string `json:"content,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	Status      Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active reference with a fresh identity.
func New(owner, repo, filePath string, refType Type) CodeReference {
	now := time.Now().UTC()
	return CodeReference{
		ID:        uuid.New().String(),
		Owner:     owner,
		Repo:      repo,
		FilePath:  filePath,
		Type:      refType,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyDeletion returns a copy of ref marked deleted. A deleted reference
// is never re-activated automatically; Reactivate is the explicit action.
func ApplyDeletion(ref CodeReference) CodeReference {
	ref.Status = StatusDeleted
	ref.UpdatedAt = time.Now().UTC()
	return ref
}

// ApplyConflict returns a copy of ref marked as conflicted.
func ApplyConflict(ref CodeReference) CodeReference {
	ref.Status = StatusConflict
	ref.UpdatedAt = time.Now().UTC()
	return ref
}

// ApplyContentUpdate returns a copy of ref carrying a new snapshot. Line
// coordinates are updated only when the caller resolved a new span
// (startLine > 0); line and range references keep their fixed coordinates
// when the snippet changed in place.
func ApplyContentUpdate(ref CodeReference, content, hash string, startLine, endLine int) CodeReference {
	ref.Content = content
	ref.ContentHash = hash
	if startLine > 0 {
		ref.StartLine = startLine
	}
	if endLine > 0 {
		ref.EndLine = endLine
	}
	ref.UpdatedAt = time.Now().UTC()
	return ref
}

// Reactivate returns a copy of ref restored to active status. It is the
// explicit external action required to bring back a deleted or conflicted
// reference; nothing in the tracking flow calls it.
func Reactivate(ref CodeReference) CodeReference {
	ref.Status = StatusActive
	ref.UpdatedAt = time.Now().UTC()
	return ref
}

// ChangeType classifies a file-level repository change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeMoved    ChangeType = "moved"
	ChangeRenamed  ChangeType = "renamed"
)

// ProcessingStatus is the lifecycle state of a change event.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// CodeChangeEvent is one unit of tracked work: a single file changed in a
// single way, affecting zero or more references. Events are created
// pending by the webhook ingester and processed at most once to success;
// a failed event is retried only by an explicit external re-queue.
type CodeChangeEvent struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	Repo       string     `json:"repo"`
	FilePath   string     `json:"file_path"`
	ChangeType ChangeType `json:"change_type"`
	CommitID   string     `json:"commit_id"`
	CommitTime time.Time  `json:"commit_time"`

	// AffectedReferences holds the ids of references whose file path
	// matched this event's file path at ingestion time.
	AffectedReferences []string `json:"affected_references,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ErrorMessage     string           `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewChangeEvent creates a pending change event.
func NewChangeEvent(owner, repo, filePath string, changeType ChangeType, commitID string, commitTime time.Time, affected []string) CodeChangeEvent {
	return CodeChangeEvent{
		ID:                 uuid.New().String(),
		Owner:              owner,
		Repo:               repo,
		FilePath:           filePath,
		ChangeType:         changeType,
		CommitID:           commitID,
		CommitTime:         commitTime,
		AffectedReferences: affected,
		ProcessingStatus:   ProcessingPending,
		CreatedAt:          time.Now().UTC(),
	}
}

// MarkProcessing returns a copy of ev in the processing state.
func MarkProcessing(ev CodeChangeEvent) CodeChangeEvent {
	ev.ProcessingStatus = ProcessingInProgress
	return ev
}

// MarkCompleted returns a copy of ev in the terminal completed state.
func MarkCompleted(ev CodeChangeEvent) CodeChangeEvent {
	ev.ProcessingStatus = ProcessingCompleted
	ev.ErrorMessage = ""
	return ev
}

// MarkFailed returns a copy of ev in the failed state carrying the error
// message for the external scheduler to inspect.
func MarkFailed(ev CodeChangeEvent, msg string) CodeChangeEvent {
	ev.ProcessingStatus = ProcessingFailed
	ev.ErrorMessage = msg
	return ev
}

// Requeue returns a copy of a failed event reset to pending. It is the
// explicit external re-queue action; completed events are immutable and
// must not pass through here.
func Requeue(ev CodeChangeEvent) CodeChangeEvent {
	ev.ProcessingStatus = ProcessingPending
	ev.ErrorMessage = ""
	return ev
}
