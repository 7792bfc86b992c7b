package changetracker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/tether/notify"
	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
	"github.com/c360studio/tether/track"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing stream", func(c *Config) { c.StreamName = "" }, true},
		{"missing consumer", func(c *Config) { c.ConsumerName = "" }, true},
		{"batch over cap", func(c *Config) { c.BatchSize = 51 }, true},
		{"bad duration", func(c *Config) { c.FetchMaxWait = "soon" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigBatchSizeCap(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, 50, cfg.GetBatchSize(), "zero falls back to the cap")

	cfg.BatchSize = 10
	assert.Equal(t, 10, cfg.GetBatchSize())
}

func TestNewComponent(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"batch_size": 25})
	require.NoError(t, err)

	c, err := NewComponent(raw, component.Dependencies{})
	require.NoError(t, err)

	comp, ok := c.(*Component)
	require.True(t, ok)
	assert.Equal(t, 25, comp.config.BatchSize)
	assert.Equal(t, storage.ChangeStream, comp.config.StreamName, "defaults survive partial config")
}

type trackerStore struct {
	events map[string]reference.CodeChangeEvent
	refs   map[string]reference.CodeReference
	puts   int
}

func (s *trackerStore) GetEvent(_ context.Context, id string) (reference.CodeChangeEvent, error) {
	ev, ok := s.events[id]
	if !ok {
		return reference.CodeChangeEvent{}, storage.ErrNotFound
	}
	return ev, nil
}

func (s *trackerStore) GetReference(_ context.Context, id string) (reference.CodeReference, uint64, error) {
	ref, ok := s.refs[id]
	if !ok {
		return reference.CodeReference{}, 0, storage.ErrNotFound
	}
	return ref, 1, nil
}

func (s *trackerStore) UpdateReference(_ context.Context, ref reference.CodeReference, _ uint64) error {
	s.refs[ref.ID] = ref
	return nil
}

func (s *trackerStore) PutEvent(_ context.Context, ev reference.CodeChangeEvent) error {
	s.events[ev.ID] = ev
	s.puts++
	return nil
}

func TestProcessEventID_FinishedEventIsNoOp(t *testing.T) {
	ev := reference.NewChangeEvent("acme", "billing", "a.go", reference.ChangeModified, "abc", time.Now(), nil)
	ev = reference.MarkCompleted(ev)

	store := &trackerStore{events: map[string]reference.CodeChangeEvent{ev.ID: ev}}
	c := &Component{
		config:   DefaultConfig(),
		logger:   testLogger(),
		store:    store,
		detector: track.NewDetector(store, nil, notify.NewDispatcher(nil, nil), nil),
	}

	require.NoError(t, c.processEventID(context.Background(), ev.ID))
	assert.Zero(t, store.puts, "finished events are never touched again")
}

func TestProcessEventID_DeletionEvent(t *testing.T) {
	ref := reference.New("acme", "billing", "a.go", reference.TypeLine)
	ref.StartLine = 1
	ev := reference.NewChangeEvent("acme", "billing", "a.go", reference.ChangeDeleted, "abc", time.Now(), []string{ref.ID})

	store := &trackerStore{
		events: map[string]reference.CodeChangeEvent{ev.ID: ev},
		refs:   map[string]reference.CodeReference{ref.ID: ref},
	}
	c := &Component{
		config:   DefaultConfig(),
		logger:   testLogger(),
		store:    store,
		detector: track.NewDetector(store, nil, notify.NewDispatcher(nil, nil), nil),
	}

	require.NoError(t, c.processEventID(context.Background(), ev.ID))
	assert.Equal(t, reference.ProcessingCompleted, store.events[ev.ID].ProcessingStatus)
	assert.Equal(t, reference.StatusDeleted, store.refs[ref.ID].Status)
}

func TestProcessEventID_UnknownEvent(t *testing.T) {
	store := &trackerStore{events: map[string]reference.CodeChangeEvent{}}
	c := &Component{config: DefaultConfig(), logger: testLogger(), store: store}

	assert.Error(t, c.processEventID(context.Background(), "missing"))
}
