// Package storage persists code references and change events in NATS
// JetStream KV, and owns the change-event work stream. Reference updates
// use KV revisions as an optimistic compare-and-swap so two events racing
// on the same reference cannot lose writes.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/tether/reference"
)

// Bucket names.
const (
	BucketReferences = "TETHER_REFERENCES"
	BucketEvents     = "TETHER_EVENTS"
)

// Work stream carrying pending change-event ids.
const (
	ChangeStream        = "TETHER_CHANGES"
	ChangeSubjectPrefix = "change.event.pending."
	ChangeSubjects      = "change.event.>"
)

// Store provides reference and event persistence backed by NATS KV.
type Store struct {
	references jetstream.KeyValue
	events     jetstream.KeyValue
}

// NewStore creates a Store, creating the KV buckets and the change work
// stream if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	references, err := getOrCreateBucket(ctx, js, BucketReferences)
	if err != nil {
		return nil, fmt.Errorf("create references bucket: %w", err)
	}

	events, err := getOrCreateBucket(ctx, js, BucketEvents)
	if err != nil {
		return nil, fmt.Errorf("create events bucket: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      ChangeStream,
		Subjects:  []string{ChangeSubjects},
		Retention: jetstream.WorkQueuePolicy,
	}); err != nil {
		return nil, fmt.Errorf("create change stream: %w", err)
	}

	return &Store{references: references, events: events}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Tether %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// CreateReference stores a new reference. The id must not already exist.
func (s *Store) CreateReference(ctx context.Context, ref reference.CodeReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal reference: %w", err)
	}
	if _, err := s.references.Create(ctx, ref.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("reference %s: %w", ref.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("store reference: %w", err)
	}
	return nil
}

// GetReference loads a reference and the KV revision to pass back to
// UpdateReference for a compare-and-swap write.
func (s *Store) GetReference(ctx context.Context, id string) (reference.CodeReference, uint64, error) {
	entry, err := s.references.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return reference.CodeReference{}, 0, ErrNotFound
		}
		return reference.CodeReference{}, 0, fmt.Errorf("get reference: %w", err)
	}

	var ref reference.CodeReference
	if err := json.Unmarshal(entry.Value(), &ref); err != nil {
		return reference.CodeReference{}, 0, fmt.Errorf("unmarshal reference: %w", err)
	}
	return ref, entry.Revision(), nil
}

// UpdateReference writes ref only if the key is still at the expected
// revision; a concurrent writer surfaces as ErrRevisionConflict.
func (s *Store) UpdateReference(ctx context.Context, ref reference.CodeReference, expectedRevision uint64) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal reference: %w", err)
	}
	if _, err := s.references.Update(ctx, ref.ID, data, expectedRevision); err != nil {
		if isRevisionConflict(err) {
			return ErrRevisionConflict
		}
		return fmt.Errorf("update reference: %w", err)
	}
	return nil
}

// PutReference writes ref unconditionally. Reserved for explicit external
// actions (resolve, reactivate) that intentionally win over trackers.
func (s *Store) PutReference(ctx context.Context, ref reference.CodeReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal reference: %w", err)
	}
	if _, err := s.references.Put(ctx, ref.ID, data); err != nil {
		return fmt.Errorf("put reference: %w", err)
	}
	return nil
}

// ListReferences returns all references, optionally filtered by repository.
// Empty owner/repo match everything.
func (s *Store) ListReferences(ctx context.Context, owner, repo string) ([]reference.CodeReference, error) {
	keys, err := s.references.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reference keys: %w", err)
	}

	refs := make([]reference.CodeReference, 0, len(keys))
	for _, key := range keys {
		entry, err := s.references.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var ref reference.CodeReference
		if err := json.Unmarshal(entry.Value(), &ref); err != nil {
			continue
		}
		if owner != "" && ref.Owner != owner {
			continue
		}
		if repo != "" && ref.Repo != repo {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ListReferencesByFile returns the references pointing at one file.
func (s *Store) ListReferencesByFile(ctx context.Context, owner, repo, path string) ([]reference.CodeReference, error) {
	refs, err := s.ListReferences(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	matched := refs[:0]
	for _, ref := range refs {
		if ref.FilePath == path {
			matched = append(matched, ref)
		}
	}
	return matched, nil
}

// ActivePathsForRepo returns the set of file paths with at least one
// active reference, mapped to the ids of those references. The webhook
// ingester intersects push payloads against this set.
func (s *Store) ActivePathsForRepo(ctx context.Context, owner, repo string) (map[string][]string, error) {
	refs, err := s.ListReferences(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	paths := make(map[string][]string)
	for _, ref := range refs {
		if ref.Status != reference.StatusActive {
			continue
		}
		paths[ref.FilePath] = append(paths[ref.FilePath], ref.ID)
	}
	return paths, nil
}

// CreateEvent stores a new change event.
func (s *Store) CreateEvent(ctx context.Context, ev reference.CodeChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.events.Create(ctx, ev.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("event %s: %w", ev.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

// GetEvent loads a change event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (reference.CodeChangeEvent, error) {
	entry, err := s.events.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return reference.CodeChangeEvent{}, ErrNotFound
		}
		return reference.CodeChangeEvent{}, fmt.Errorf("get event: %w", err)
	}

	var ev reference.CodeChangeEvent
	if err := json.Unmarshal(entry.Value(), &ev); err != nil {
		return reference.CodeChangeEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// PutEvent writes an event's current processing state.
func (s *Store) PutEvent(ctx context.Context, ev reference.CodeChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.events.Put(ctx, ev.ID, data); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// ListEvents returns all events, optionally filtered by processing status.
func (s *Store) ListEvents(ctx context.Context, status reference.ProcessingStatus) ([]reference.CodeChangeEvent, error) {
	keys, err := s.events.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list event keys: %w", err)
	}

	events := make([]reference.CodeChangeEvent, 0, len(keys))
	for _, key := range keys {
		entry, err := s.events.Get(ctx, key)
		if err != nil {
			continue
		}
		var ev reference.CodeChangeEvent
		if err := json.Unmarshal(entry.Value(), &ev); err != nil {
			continue
		}
		if status != "" && ev.ProcessingStatus != status {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ChangeSubject returns the work-stream subject for an event id.
func ChangeSubject(eventID string) string {
	return ChangeSubjectPrefix + eventID
}

func isRevisionConflict(err error) bool {
	return err != nil && (errors.Is(err, jetstream.ErrKeyExists) ||
		strings.Contains(err.Error(), "wrong last sequence"))
}
