// Package memory implements a process-local slot, used for tests and the
// "memory" storage driver.
package memory

import (
	"context"
	"sync"

	"classledger/pkg/domain"
)

// Slot keeps the last written payload in memory.
type Slot struct {
	mu    sync.RWMutex
	data  []byte
	set   bool
	reads int
}

var _ domain.Slot = (*Slot)(nil)

// New returns an empty slot.
func New() *Slot { return &Slot{} }

// NewWith returns a slot pre-loaded with payload.
func NewWith(payload []byte) *Slot {
	return &Slot{data: append([]byte(nil), payload...), set: true}
}

func (s *Slot) Driver() string { return "memory" }

// Read returns a copy of the stored payload or domain.ErrSlotEmpty.
func (s *Slot) Read(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if !s.set {
		return nil, domain.ErrSlotEmpty
	}
	return append([]byte(nil), s.data...), nil
}

func (s *Slot) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), payload...)
	s.set = true
	return nil
}

// Reads reports how many times Read has been called.
func (s *Slot) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}
