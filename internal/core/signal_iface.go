package core

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrBackpressure = errors.New("backpressure")
)

// Frame is an encoded outbound event.
type Frame []byte

// ConnID identifies one live transport session. A reconnect gets a new one.
type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
