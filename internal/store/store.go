// Package store owns the canonical entity collections and applies mutations
// to them. Every dispatched action produces a new immutable snapshot which is
// then handed to the configured Saver and listeners.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"classledger/internal/logging"
	"classledger/pkg/domain"
)

// Saver persists a full snapshot. Implementations report failures through
// the returned error; the store never rolls back on a failed save.
type Saver interface {
	Save(ctx context.Context, data domain.Dataset) error
}

// Event is delivered to listeners after an action has been applied and saved.
type Event struct {
	Outcome Outcome
	Changes []domain.Change
	Dataset domain.Dataset
	SaveErr error
}

// Listener observes applied actions.
type Listener func(ctx context.Context, ev Event)

// Store is the mutation engine. Dispatch is serialized so one action is
// applied, cascaded and saved before the next begins.
type Store struct {
	dispatchMu sync.Mutex

	mu          sync.RWMutex
	data        domain.Dataset
	lastSaveErr error

	idx       *naturalKeys
	saver     Saver
	listeners []Listener
	logger    logging.Logger
	nowFn     func() time.Time
	idFn      func() string
	cascade   CascadeMode
}

// Option configures a Store.
type Option func(*Store)

// WithSaver sets the persistence target invoked after every action.
func WithSaver(s Saver) Option { return func(st *Store) { st.saver = s } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(st *Store) { st.logger = logging.OrNoop(l) } }

// WithClock overrides the time source used for createdAt stamps.
func WithClock(now func() time.Time) Option { return func(st *Store) { st.nowFn = now } }

// WithIDGenerator overrides id generation.
func WithIDGenerator(fn func() string) Option { return func(st *Store) { st.idFn = fn } }

// WithCascadeMode selects group-delete cascade behaviour.
func WithCascadeMode(mode CascadeMode) Option { return func(st *Store) { st.cascade = mode } }

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(st *Store) { st.listeners = append(st.listeners, l) }
}

// New constructs a store seeded with initial, typically the result of the
// persistence adapter's Load.
func New(initial domain.Dataset, opts ...Option) *Store {
	data := initial.Clone().Normalize()
	s := &Store{
		data:    data,
		idx:     buildNaturalKeys(data),
		logger:  logging.Noop(),
		nowFn:   func() time.Time { return time.Now().UTC() },
		idFn:    uuid.NewString,
		cascade: CascadeLegacyPartial,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current dataset. The returned collections must not be modified.
func (s *Store) Snapshot() domain.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// CascadeMode reports the configured group-delete cascade mode.
func (s *Store) CascadeMode() CascadeMode { return s.cascade }

// LastSaveError returns the error of the most recent save, or nil.
func (s *Store) LastSaveError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSaveErr
}

// Dispatch applies action and returns its outcome. It never fails: missing
// ids yield StatusNotFound, duplicate links StatusUnchanged. Every call,
// including no-ops, is followed by a full-snapshot save.
func (s *Store) Dispatch(ctx context.Context, action Action) Outcome {
	if action == nil {
		return Outcome{Status: StatusUnchanged}
	}
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	current := s.Snapshot()
	if s.idx.stale {
		s.idx.rebuild(current)
	}
	m := &mutation{
		data:    current,
		idx:     s.idx,
		now:     s.nowFn(),
		newID:   s.idFn,
		cascade: s.cascade,
	}
	out := action.apply(m)
	if s.idx.stale {
		s.idx.rebuild(m.data)
	}

	s.mu.Lock()
	s.data = m.data
	s.mu.Unlock()

	s.logger.Debug("action applied", "kind", string(out.Kind), "status", string(out.Status), "id", out.ID)

	var saveErr error
	if s.saver != nil {
		saveErr = s.saver.Save(ctx, m.data)
		s.mu.Lock()
		s.lastSaveErr = saveErr
		s.mu.Unlock()
	}
	if len(s.listeners) > 0 {
		ev := Event{Outcome: out, Changes: m.changes, Dataset: m.data, SaveErr: saveErr}
		for _, l := range s.listeners {
			l(ctx, ev)
		}
	}
	return out
}

// DispatchAll applies actions in order and returns their outcomes.
func (s *Store) DispatchAll(ctx context.Context, actions ...Action) []Outcome {
	out := make([]Outcome, 0, len(actions))
	for _, a := range actions {
		out = append(out, s.Dispatch(ctx, a))
	}
	return out
}
