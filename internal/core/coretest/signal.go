// Package coretest provides in-memory doubles for core interfaces.
package coretest

import (
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/goccy/go-json"
)

// Signal records frames pushed to it. Setting Full makes TrySend report
// backpressure.
type Signal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func NewSignal() *Signal { return &Signal{} }

func (s *Signal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrConnClosed
	}
	if s.full {
		return core.ErrBackpressure
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Signal) SetFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

func (s *Signal) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Events decodes every recorded frame.
func (s *Signal) Events() []core.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Envelope, 0, len(s.frames))
	for _, f := range s.frames {
		env, err := core.Decode(f)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// Of returns the recorded events of one type.
func (s *Signal) Of(typ string) []core.Envelope {
	var out []core.Envelope
	for _, env := range s.Events() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// Count returns how many events of typ were recorded.
func (s *Signal) Count(typ string) int { return len(s.Of(typ)) }

// Data returns the raw payload of the n-th event of typ, or nil.
func (s *Signal) Data(typ string, n int) json.RawMessage {
	evs := s.Of(typ)
	if n >= len(evs) {
		return nil
	}
	return evs[n].Data
}

func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}
