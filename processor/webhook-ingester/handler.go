package webhookingester

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
)

// Store is the persistence surface the ingestion handler needs.
type Store interface {
	ActivePathsForRepo(ctx context.Context, owner, repo string) (map[string][]string, error)
	CreateEvent(ctx context.Context, ev reference.CodeChangeEvent) error
}

// Publisher hands created event ids to the work stream.
type Publisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Handler turns verified push payloads into pending change events. It
// performs storage lookups and publishes only; no content fetching, no
// extraction.
type Handler struct {
	store       Store
	publisher   Publisher
	ignoreGlobs []string
	logger      *slog.Logger
}

// NewHandler creates a push ingestion handler.
func NewHandler(store Store, publisher Publisher, ignoreGlobs []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:       store,
		publisher:   publisher,
		ignoreGlobs: ignoreGlobs,
		logger:      logger,
	}
}

// ProcessPush creates one pending event per changed file that carries at
// least one active reference, and publishes each event id to the work
// stream. Files without references, and files matching an ignore glob,
// produce nothing. An empty commit list produces zero events.
func (h *Handler) ProcessPush(ctx context.Context, payload PushPayload) ([]reference.CodeChangeEvent, error) {
	owner, repo, err := splitFullName(payload.Repository.FullName)
	if err != nil {
		return nil, err
	}

	if len(payload.Commits) == 0 {
		return nil, nil
	}

	activePaths, err := h.store.ActivePathsForRepo(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("load active paths: %w", err)
	}

	var created []reference.CodeChangeEvent
	for _, commit := range payload.Commits {
		groups := []struct {
			files      []string
			changeType reference.ChangeType
		}{
			{commit.Added, reference.ChangeAdded},
			{commit.Modified, reference.ChangeModified},
			{commit.Removed, reference.ChangeDeleted},
		}

		for _, g := range groups {
			for _, file := range g.files {
				if h.ignored(file) {
					continue
				}
				affected := activePaths[file]
				if len(affected) == 0 {
					continue
				}

				ev := reference.NewChangeEvent(owner, repo, file, g.changeType, commit.ID, commit.Timestamp, affected)
				if err := h.store.CreateEvent(ctx, ev); err != nil {
					return created, fmt.Errorf("persist event for %s: %w", file, err)
				}
				if err := h.publisher.PublishToStream(ctx, storage.ChangeSubject(ev.ID), []byte(ev.ID)); err != nil {
					return created, fmt.Errorf("publish event %s: %w", ev.ID, err)
				}

				created = append(created, ev)
				h.logger.Debug("Change event created",
					"event_id", ev.ID,
					"file", file,
					"change_type", g.changeType,
					"affected", len(affected))
			}
		}
	}

	return created, nil
}

// ignored reports whether path matches any configured ignore glob.
// Invalid patterns are rejected at config validation, so Match errors
// cannot occur here.
func (h *Handler) ignored(path string) bool {
	for _, glob := range h.ignoreGlobs {
		if ok, _ := doublestar.Match(glob, path); ok {
			return true
		}
	}
	return false
}

// splitFullName splits "owner/repo" into its parts.
func splitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository full_name %q", fullName)
	}
	return parts[0], parts[1], nil
}
