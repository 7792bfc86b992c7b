package track

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tether/content"
	"github.com/c360studio/tether/extract"
	"github.com/c360studio/tether/notify"
	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
)

type fakeStore struct {
	refs      map[string]reference.CodeReference
	revs      map[string]uint64
	events    []reference.CodeChangeEvent
	updates   int
	conflicts int // remaining UpdateReference calls to reject
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		refs: make(map[string]reference.CodeReference),
		revs: make(map[string]uint64),
	}
}

func (s *fakeStore) put(ref reference.CodeReference) {
	s.refs[ref.ID] = ref
	s.revs[ref.ID]++
}

func (s *fakeStore) GetReference(_ context.Context, id string) (reference.CodeReference, uint64, error) {
	ref, ok := s.refs[id]
	if !ok {
		return reference.CodeReference{}, 0, storage.ErrNotFound
	}
	return ref, s.revs[id], nil
}

func (s *fakeStore) UpdateReference(_ context.Context, ref reference.CodeReference, expectedRevision uint64) error {
	if s.conflicts > 0 {
		s.conflicts--
		s.revs[ref.ID]++ // a concurrent writer advanced the revision
		return storage.ErrRevisionConflict
	}
	if expectedRevision != s.revs[ref.ID] {
		return storage.ErrRevisionConflict
	}
	s.put(ref)
	s.updates++
	return nil
}

func (s *fakeStore) PutEvent(_ context.Context, ev reference.CodeChangeEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) lastEvent(t *testing.T) reference.CodeChangeEvent {
	t.Helper()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

type fakeProvider struct {
	files map[string]*content.FileContent
	errs  map[string]error
}

func (p *fakeProvider) key(owner, repo, path string) string {
	return owner + "/" + repo + "/" + path
}

func (p *fakeProvider) GetFileContent(_ context.Context, owner, repo, path, _ string) (*content.FileContent, error) {
	k := p.key(owner, repo, path)
	if err, ok := p.errs[k]; ok {
		return nil, err
	}
	fc, ok := p.files[k]
	if !ok {
		return nil, &extract.FileNotFoundError{Owner: owner, Repo: repo, Path: path}
	}
	return fc, nil
}

type fakeNotifier struct {
	payloads []notify.Payload
}

func (n *fakeNotifier) Send(_ context.Context, p notify.Payload) {
	n.payloads = append(n.payloads, p)
}

func newLineRef(store *fakeStore, path, snippet string, line int) reference.CodeReference {
	ref := reference.New("acme", "billing", path, reference.TypeLine)
	ref.StartLine = line
	ref.Content = snippet
	ref.ContentHash = extract.Hash(snippet)
	store.put(ref)
	return ref
}

func changeEvent(path string, ct reference.ChangeType, affected ...string) reference.CodeChangeEvent {
	return reference.NewChangeEvent("acme", "billing", path, ct, "abc123", time.Now().UTC(), affected)
}

func TestProcessEvent_FileDeleted(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := newLineRef(store, "pay/charge.go", "return gateway.Charge(amount)", 7)

	d := NewDetector(store, &fakeProvider{}, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/charge.go", reference.ChangeDeleted, ref.ID))
	require.NoError(t, err)

	assert.Equal(t, reference.ProcessingCompleted, ev.ProcessingStatus)
	assert.Equal(t, reference.StatusDeleted, store.refs[ref.ID].Status)

	require.Len(t, notifier.payloads, 1)
	p := notifier.payloads[0]
	assert.Equal(t, notify.KindConflict, p.Kind)
	assert.Contains(t, p.Message, "manual intervention needed")
	assert.Equal(t, ref.ID, p.ReferenceID)
}

func TestProcessEvent_DeletionIsIdempotent(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := newLineRef(store, "pay/charge.go", "return gateway.Charge(amount)", 7)

	d := NewDetector(store, &fakeProvider{}, notifier, nil)
	ctx := context.Background()
	_, err := d.ProcessEvent(ctx, changeEvent("pay/charge.go", reference.ChangeDeleted, ref.ID))
	require.NoError(t, err)

	writesBefore := store.updates
	sentBefore := len(notifier.payloads)

	ev, err := d.ProcessEvent(ctx, changeEvent("pay/charge.go", reference.ChangeDeleted, ref.ID))
	require.NoError(t, err)

	assert.Equal(t, reference.ProcessingCompleted, ev.ProcessingStatus)
	assert.Equal(t, writesBefore, store.updates, "second deletion must not write")
	assert.Equal(t, sentBefore, len(notifier.payloads), "second deletion must not notify")
}

func TestProcessEvent_ContentUnchanged(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	snippet := "tax := total * rate"
	ref := newLineRef(store, "pay/tax.go", snippet, 2)

	provider := &fakeProvider{files: map[string]*content.FileContent{
		"acme/billing/pay/tax.go": {Content: "package pay\n" + snippet + "\n", SHA: "sha1"},
	}}

	d := NewDetector(store, provider, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/tax.go", reference.ChangeModified, ref.ID))
	require.NoError(t, err)

	assert.Equal(t, reference.ProcessingCompleted, ev.ProcessingStatus)
	assert.Zero(t, store.updates)
	assert.Empty(t, notifier.payloads)
}

func TestProcessEvent_VerbatimRelocation(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := reference.New("acme", "billing", "pay/tax.go", reference.TypeRange)
	ref.StartLine, ref.EndLine = 2, 3
	ref.Content = "total := price * quantity\ntax := total * rate"
	ref.ContentHash = extract.Hash(ref.Content)
	store.put(ref)

	// Two lines inserted above: the old span now extracts different text,
	// but the original snippet survives verbatim at lines 4-5.
	newFile := "package pay\n\nimport \"math\"\ntotal := price * quantity\ntax := total * rate\n"
	provider := &fakeProvider{files: map[string]*content.FileContent{
		"acme/billing/pay/tax.go": {Content: newFile, SHA: "sha2"},
	}}

	d := NewDetector(store, provider, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/tax.go", reference.ChangeModified, ref.ID))
	require.NoError(t, err)
	assert.Equal(t, reference.ProcessingCompleted, ev.ProcessingStatus)

	got := store.refs[ref.ID]
	assert.Equal(t, 4, got.StartLine)
	assert.Equal(t, 5, got.EndLine)
	assert.Equal(t, ref.Content, got.Content, "verbatim move keeps the snapshot")
	assert.Equal(t, ref.ContentHash, got.ContentHash)

	require.Len(t, notifier.payloads, 1)
	p := notifier.payloads[0]
	assert.Equal(t, notify.KindChange, p.Kind)
	assert.Equal(t, 1.0, p.Confidence)
	assert.Equal(t, ReasonExactMove, p.Reason)
}

func TestProcessEvent_ContentReplaced(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := newLineRef(store, "pay/tax.go", "tax := total * rate", 2)

	newFile := "package pay\nfee = shipping.Flat()\n"
	provider := &fakeProvider{files: map[string]*content.FileContent{
		"acme/billing/pay/tax.go": {Content: newFile, SHA: "sha3"},
	}}

	d := NewDetector(store, provider, notifier, nil)
	_, err := d.ProcessEvent(context.Background(), changeEvent("pay/tax.go", reference.ChangeModified, ref.ID))
	require.NoError(t, err)

	got := store.refs[ref.ID]
	assert.Equal(t, "fee = shipping.Flat()", got.Content)
	assert.Equal(t, 2, got.StartLine, "fixed coordinates stay put")

	require.Len(t, notifier.payloads, 1)
	p := notifier.payloads[0]
	assert.Equal(t, notify.KindChange, p.Kind)
	assert.Equal(t, 0.0, p.Confidence)
	assert.Equal(t, ReasonNotFound, p.Reason)
}

func TestProcessEvent_FunctionRemoved(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := reference.New("acme", "billing", "pay/charge.go", reference.TypeFunction)
	ref.FunctionName = "charge"
	ref.Content = "func charge() {}"
	ref.ContentHash = extract.Hash(ref.Content)
	store.put(ref)

	provider := &fakeProvider{files: map[string]*content.FileContent{
		"acme/billing/pay/charge.go": {Content: "package pay\n\nfunc refund() {\n}\n", SHA: "sha4"},
	}}

	d := NewDetector(store, provider, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/charge.go", reference.ChangeModified, ref.ID))
	require.NoError(t, err)

	assert.Equal(t, reference.ProcessingCompleted, ev.ProcessingStatus)
	assert.Equal(t, reference.StatusDeleted, store.refs[ref.ID].Status)
	require.Len(t, notifier.payloads, 1)
	assert.Equal(t, notify.KindConflict, notifier.payloads[0].Kind)
}

func TestProcessEvent_FailureIsolation(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	broken := newLineRef(store, "pay/a.go", "alpha()", 1)
	healthy := newLineRef(store, "pay/a.go", "alpha()", 1)

	provider := &fakeProvider{
		files: map[string]*content.FileContent{
			"acme/billing/pay/a.go": {Content: "beta()\n", SHA: "sha5"},
		},
	}

	// Break the first reference only: drop it from the store.
	delete(store.refs, broken.ID)

	d := NewDetector(store, provider, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/a.go", reference.ChangeModified, broken.ID, healthy.ID))
	require.NoError(t, err, "event bookkeeping itself must succeed")

	assert.Equal(t, reference.ProcessingFailed, ev.ProcessingStatus)
	assert.Contains(t, ev.ErrorMessage, broken.ID)

	// The sibling was still processed to completion.
	assert.Equal(t, "beta()", store.refs[healthy.ID].Content)
	require.Len(t, notifier.payloads, 1)
	assert.Equal(t, healthy.ID, notifier.payloads[0].ReferenceID)
}

func TestProcessEvent_RetriesOnRevisionConflict(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := newLineRef(store, "pay/tax.go", "tax := total * rate", 2)
	store.conflicts = 1

	provider := &fakeProvider{files: map[string]*content.FileContent{
		"acme/billing/pay/tax.go": {Content: "package pay\nfee := flat()\n", SHA: "sha6"},
	}}

	d := NewDetector(store, provider, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/tax.go", reference.ChangeModified, ref.ID))
	require.NoError(t, err)

	assert.Equal(t, reference.ProcessingCompleted, ev.ProcessingStatus)
	assert.Equal(t, 1, store.updates)
	assert.Len(t, notifier.payloads, 1, "notify once, only after the durable write")
}

func TestProcessEvent_ProviderErrorFailsEvent(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ref := newLineRef(store, "pay/tax.go", "tax := total * rate", 2)

	provider := &fakeProvider{errs: map[string]error{
		"acme/billing/pay/tax.go": fmt.Errorf("github: %w", errors.New("503")),
	}}

	d := NewDetector(store, provider, notifier, nil)
	ev, err := d.ProcessEvent(context.Background(), changeEvent("pay/tax.go", reference.ChangeModified, ref.ID))
	require.NoError(t, err)

	assert.Equal(t, reference.ProcessingFailed, ev.ProcessingStatus)
	assert.NotEmpty(t, ev.ErrorMessage)
	assert.Empty(t, notifier.payloads)
	assert.Zero(t, store.updates)
}
