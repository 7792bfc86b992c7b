// Package track is the change-detection core: given a change event and
// the references tied to the changed file, it recomputes each reference's
// validity, relocates moved code, and decides update versus conflict.
// The detector composes the pure transition functions from the reference
// package and persists through an explicit store boundary.
package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/tether/content"
	"github.com/c360studio/tether/extract"
	"github.com/c360studio/tether/notify"
	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
)

// casAttempts bounds the read-modify-write retries when two events race
// on the same reference.
const casAttempts = 3

// Store is the persistence surface the detector needs.
type Store interface {
	GetReference(ctx context.Context, id string) (reference.CodeReference, uint64, error)
	UpdateReference(ctx context.Context, ref reference.CodeReference, expectedRevision uint64) error
	PutEvent(ctx context.Context, ev reference.CodeChangeEvent) error
}

// Notifier delivers best-effort notifications; implementations never
// return errors to the tracking flow.
type Notifier interface {
	Send(ctx context.Context, p notify.Payload)
}

// Detector drives the per-reference disposition algorithm.
type Detector struct {
	store    Store
	provider content.Provider
	notifier Notifier
	logger   *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(store Store, provider content.Provider, notifier Notifier, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, provider: provider, notifier: notifier, logger: logger}
}

// ProcessEvent applies the event to each affected reference independently
// and records the terminal event state. A failing reference marks the
// event failed but never aborts its siblings; the returned error reports
// only failures to persist the event record itself.
func (d *Detector) ProcessEvent(ctx context.Context, ev reference.CodeChangeEvent) (reference.CodeChangeEvent, error) {
	ev = reference.MarkProcessing(ev)
	if err := d.store.PutEvent(ctx, ev); err != nil {
		return ev, fmt.Errorf("mark event processing: %w", err)
	}

	var failures []string
	for _, id := range ev.AffectedReferences {
		if err := d.processReference(ctx, ev, id); err != nil {
			d.logger.Error("Reference update failed",
				"event_id", ev.ID,
				"reference_id", id,
				"error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
		}
	}

	if len(failures) > 0 {
		ev = reference.MarkFailed(ev, strings.Join(failures, "; "))
	} else {
		ev = reference.MarkCompleted(ev)
	}

	if err := d.store.PutEvent(ctx, ev); err != nil {
		return ev, fmt.Errorf("record event outcome: %w", err)
	}
	return ev, nil
}

// processReference runs the disposition for one reference under a CAS
// loop: a concurrent writer forces a re-read and re-evaluation so the
// single-active-writer rule holds without a lock.
func (d *Detector) processReference(ctx context.Context, ev reference.CodeChangeEvent, id string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		ref, rev, err := d.store.GetReference(ctx, id)
		if err != nil {
			return err
		}

		out, err := d.evaluate(ctx, ev, ref)
		if err != nil {
			return err
		}
		if out == nil {
			// Content unchanged: no write, no notification.
			return nil
		}

		if err := d.store.UpdateReference(ctx, out.ref, rev); err != nil {
			if errors.Is(err, storage.ErrRevisionConflict) {
				continue
			}
			return err
		}

		// The update is durable; notification outcome never rolls it back.
		for _, p := range out.notifications {
			d.notifier.Send(ctx, p)
		}
		return nil
	}
	return fmt.Errorf("reference %s: gave up after %d concurrent update conflicts", id, casAttempts)
}

// outcome is a decided disposition: the reference to persist and the
// notifications to attempt afterwards.
type outcome struct {
	ref           reference.CodeReference
	notifications []notify.Payload
}

func (d *Detector) evaluate(ctx context.Context, ev reference.CodeChangeEvent, ref reference.CodeReference) (*outcome, error) {
	if ev.ChangeType == reference.ChangeDeleted {
		if ref.Status == reference.StatusDeleted {
			return nil, nil
		}
		return &outcome{
			ref:           reference.ApplyDeletion(ref),
			notifications: []notify.Payload{conflictPayload(ref, "file deleted")},
		}, nil
	}

	fc, err := d.provider.GetFileContent(ctx, ref.Owner, ref.Repo, ref.FilePath, ev.CommitID)
	if err != nil {
		return nil, err
	}

	newContent, newStart, newEnd, gone, err := d.reextract(ref, fc)
	if err != nil {
		return nil, err
	}
	if gone {
		// The named function no longer resolves: equivalent to deletion
		// for this reference only.
		if ref.Status == reference.StatusDeleted {
			return nil, nil
		}
		return &outcome{
			ref:           reference.ApplyDeletion(ref),
			notifications: []notify.Payload{conflictPayload(ref, "function removed")},
		}, nil
	}

	newHash := extract.Hash(newContent)
	if newHash == ref.ContentHash {
		if ref.Type == reference.TypeFunction && (newStart != ref.StartLine || newEnd != ref.EndLine) {
			// The function moved verbatim: repoint the span silently.
			updated := reference.ApplyContentUpdate(ref, ref.Content, ref.ContentHash, newStart, newEnd)
			return &outcome{ref: updated}, nil
		}
		return nil, nil
	}

	mv := DetectMovement(ref.Content, fc.Content, newContent)

	var updated reference.CodeReference
	if mv.Relocated {
		// Verbatim move: the snapshot is unchanged, only the span shifts.
		start, end := spanForType(ref.Type, mv.StartLine, mv.EndLine)
		updated = reference.ApplyContentUpdate(ref, ref.Content, ref.ContentHash, start, end)
	} else {
		start, end := 0, 0
		if ref.Type == reference.TypeFunction {
			start, end = newStart, newEnd
		}
		updated = reference.ApplyContentUpdate(ref, newContent, newHash, start, end)
	}

	payload := notify.Payload{
		Kind:        notify.KindChange,
		ReferenceID: ref.ID,
		Owner:       ref.Owner,
		Repo:        ref.Repo,
		FilePath:    ref.FilePath,
		Message:     notify.FormatChange(ref.Content, updated.Content),
		Confidence:  mv.Confidence,
		Reason:      mv.Reason,
	}
	return &outcome{ref: updated, notifications: []notify.Payload{payload}}, nil
}

// reextract re-runs the reference's own descriptor against new content.
// gone reports a function reference whose declaration no longer exists.
func (d *Detector) reextract(ref reference.CodeReference, fc *content.FileContent) (text string, startLine, endLine int, gone bool, err error) {
	switch ref.Type {
	case reference.TypeLine:
		snip, err := extract.Line(fc.Content, ref.StartLine)
		if err != nil {
			return "", 0, 0, false, err
		}
		return snip.Content, ref.StartLine, ref.StartLine, false, nil

	case reference.TypeRange:
		snip, err := extract.Range(fc.Content, ref.StartLine, ref.EndLine)
		if err != nil {
			return "", 0, 0, false, err
		}
		return snip.Content, ref.StartLine, ref.EndLine, false, nil

	case reference.TypeFunction:
		snip, err := extract.Function(ref.FilePath, fc.Content, fc.SHA, ref.ClassName, ref.FunctionName)
		if err != nil {
			var nf *extract.FunctionNotFoundError
			if errors.As(err, &nf) {
				return "", 0, 0, true, nil
			}
			return "", 0, 0, false, err
		}
		return snip.Content, snip.StartLine, snip.EndLine, false, nil

	default:
		return "", 0, 0, false, &reference.InvalidReferenceError{Type: ref.Type, Reason: "unknown reference type"}
	}
}

// spanForType keeps line references single-line when a relocation is
// applied: their EndLine field stays unset.
func spanForType(t reference.Type, start, end int) (int, int) {
	if t == reference.TypeLine {
		return start, 0
	}
	return start, end
}

func conflictPayload(ref reference.CodeReference, conflictType string) notify.Payload {
	return notify.Payload{
		Kind:        notify.KindConflict,
		ReferenceID: ref.ID,
		Owner:       ref.Owner,
		Repo:        ref.Repo,
		FilePath:    ref.FilePath,
		Message:     notify.FormatConflict(conflictType, notify.ResolutionManual),
		Reason:      notify.ResolutionManual,
	}
}
