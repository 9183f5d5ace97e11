// Package store persists JSON documents behind a small backend interface and
// adds write debouncing so bursts of mutations collapse into one durable write.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Backend is the raw durable layer under a Store. Load returns nil bytes
// (and nil error) for a document that has never been written.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Store reads and writes one JSON document. Delayed saves snapshot their data
// at flush time, not at schedule time, so every mutation made inside the
// debounce window lands in the single resulting write.
type Store struct {
	key     string
	backend Backend
	log     *logrus.Entry

	mu      sync.Mutex
	timer   *time.Timer
	pending func() any
}

// New creates a store over the given backend. The key only identifies the
// document in log messages.
func New(key string, backend Backend, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		key:     key,
		backend: backend,
		log:     log.WithField("store", key),
	}
}

// Load reads the document into v. The bool is false when the document has
// never been written.
func (s *Store) Load(ctx context.Context, v any) (bool, error) {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("loading store %s: %w", s.key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding store %s: %w", s.key, err)
	}
	return true, nil
}

// Save writes v immediately. Any pending delayed save is cancelled first so a
// stale snapshot cannot land after this write.
func (s *Store) Save(ctx context.Context, v any) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.pending = nil
	s.mu.Unlock()
	return s.write(ctx, v)
}

// DelaySave schedules a write of whatever factory produces once the delay
// elapses with no further calls. Each call replaces the previous timer and
// snapshot factory.
func (s *Store) DelaySave(factory func() any, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = factory
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		s.flush(context.Background())
	})
}

// Flush performs a pending delayed save now, if one is scheduled. Callers
// must invoke it (or Close) on shutdown so a live debounce window cannot
// swallow the final write.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.mu.Unlock()
	s.flush(ctx)
}

// Close flushes and releases the store.
func (s *Store) Close(ctx context.Context) {
	s.Flush(ctx)
}

// flush takes the pending snapshot factory, if any, and writes its output.
// Write failures are logged, not propagated: the mutation that scheduled this
// save already returned to its caller, and in-memory state stays authoritative.
func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	factory := s.pending
	s.pending = nil
	s.mu.Unlock()

	if factory == nil {
		return
	}
	if err := s.write(ctx, factory()); err != nil {
		s.log.WithError(err).Error("delayed save failed, latest changes are not persisted")
	}
}

func (s *Store) write(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding store %s: %w", s.key, err)
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		return fmt.Errorf("writing store %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
