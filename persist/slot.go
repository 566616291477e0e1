// Package persist holds the single opaque session-persistence slot used by the
// identity adapters to keep a user signed in across restarts.
package persist

import (
	"context"
	"sync"
)

// Slot stores one opaque payload. Load returns a nil payload and no error when the
// slot is empty.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
	Clear(ctx context.Context) error
}

var _ Slot = (*MemorySlot)(nil)

// MemorySlot keeps the payload in process memory.
type MemorySlot struct {
	mu      sync.RWMutex
	payload []byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.payload == nil {
		return nil, nil
	}
	return append([]byte(nil), s.payload...), nil
}

func (s *MemorySlot) Save(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	return nil
}

func (s *MemorySlot) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	return nil
}
