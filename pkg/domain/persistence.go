package domain

import (
	"context"
	"errors"
)

// ErrSlotEmpty is returned by Slot.Read when nothing has been stored yet.
var ErrSlotEmpty = errors.New("slot empty")

// Slot is a single durable key-value cell holding the serialized dataset.
// Implementations replace the stored value wholesale on every Write.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Driver() string
}

// Closer is implemented by slots that hold connections or file handles.
type Closer interface {
	Close() error
}
