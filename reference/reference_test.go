package reference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ref := New("acme", "billing", "internal/payments/charge.go", TypeLine)

	require.NotEmpty(t, ref.ID)
	assert.Equal(t, StatusActive, ref.Status)
	assert.Equal(t, "acme", ref.Owner)
	assert.Equal(t, "billing", ref.Repo)
	assert.False(t, ref.CreatedAt.IsZero())
	assert.Equal(t, ref.CreatedAt, ref.UpdatedAt)

	other := New("acme", "billing", "internal/payments/charge.go", TypeLine)
	assert.NotEqual(t, ref.ID, other.ID, "identities must be unique")
}

func TestApplyDeletion(t *testing.T) {
	ref := New("acme", "billing", "charge.go", TypeLine)
	before := ref

	deleted := ApplyDeletion(ref)

	assert.Equal(t, StatusDeleted, deleted.Status)
	assert.Equal(t, StatusActive, before.Status, "input record must not be mutated")
	assert.True(t, !deleted.UpdatedAt.Before(before.UpdatedAt))
}

func TestApplyContentUpdate(t *testing.T) {
	ref := New("acme", "billing", "charge.go", TypeRange)
	ref.StartLine = 10
	ref.EndLine = 14

	t.Run("relocated span", func(t *testing.T) {
		updated := ApplyContentUpdate(ref, "new body", "abc123", 22, 26)
		assert.Equal(t, "new body", updated.Content)
		assert.Equal(t, "abc123", updated.ContentHash)
		assert.Equal(t, 22, updated.StartLine)
		assert.Equal(t, 26, updated.EndLine)
	})

	t.Run("in-place change keeps coordinates", func(t *testing.T) {
		updated := ApplyContentUpdate(ref, "new body", "abc123", 0, 0)
		assert.Equal(t, 10, updated.StartLine)
		assert.Equal(t, 14, updated.EndLine)
	})
}

func TestReactivate(t *testing.T) {
	ref := ApplyDeletion(New("acme", "billing", "charge.go", TypeLine))
	restored := Reactivate(ref)
	assert.Equal(t, StatusActive, restored.Status)
}

func TestEventLifecycle(t *testing.T) {
	ev := NewChangeEvent("acme", "billing", "charge.go", ChangeModified, "deadbeef", time.Now(), []string{"r1", "r2"})
	require.Equal(t, ProcessingPending, ev.ProcessingStatus)
	require.NotEmpty(t, ev.ID)

	ev = MarkProcessing(ev)
	assert.Equal(t, ProcessingInProgress, ev.ProcessingStatus)

	failed := MarkFailed(ev, "content unavailable")
	assert.Equal(t, ProcessingFailed, failed.ProcessingStatus)
	assert.Equal(t, "content unavailable", failed.ErrorMessage)

	requeued := Requeue(failed)
	assert.Equal(t, ProcessingPending, requeued.ProcessingStatus)
	assert.Empty(t, requeued.ErrorMessage)

	done := MarkCompleted(ev)
	assert.Equal(t, ProcessingCompleted, done.ProcessingStatus)
	assert.Empty(t, done.ErrorMessage)
}
