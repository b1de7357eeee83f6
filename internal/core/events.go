package core

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Inbound event names.
const (
	EvJoinMeeting  = "join-meeting"
	EvOffer        = "offer"
	EvAnswer       = "answer"
	EvICECandidate = "ice-candidate"
	EvJoinChat     = "join-chat"
	EvSendMessage  = "send-message"
	EvMakeCall     = "make-call"
	EvPing         = "ping"
)

// Outbound event names.
const (
	EvNewPeer           = "new-peer"
	EvOnline            = "online"
	EvOffline           = "offline"
	EvMessage           = "message"
	EvCall              = "call"
	EvRoomChanged       = "room-changed"
	EvInvitationChanged = "invitation-changed"
	EvError             = "error"
	EvPong              = "pong"
)

var ErrMalformed = errors.New("malformed event")

// Envelope is the wire shape of every event in both directions.
// Data keeps the positional array encoding of the payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is sent before a forced disconnect.
type ErrorPayload struct {
	Message string `json:"message"`
}

func Encode(typ string, data any) (Frame, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		env.Data = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return Frame(b), nil
}

// MustEncode is for payloads built from values that always marshal.
func MustEncode(typ string, data any) Frame {
	f, err := Encode(typ, data)
	if err != nil {
		panic(err)
	}
	return f
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Args decodes a positional array payload into dst, one pointer per slot.
// Missing trailing slots are an error.
func (e Envelope) Args(dst ...any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(e.Data, &raw); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	if len(raw) < len(dst) {
		return fmt.Errorf("%w: %s wants %d args, got %d", ErrMalformed, e.Type, len(dst), len(raw))
	}
	for i, d := range dst {
		if err := json.Unmarshal(raw[i], d); err != nil {
			return fmt.Errorf("%w: %s arg %d: %v", ErrMalformed, e.Type, i, err)
		}
	}
	return nil
}

// Arg decodes a scalar payload.
func (e Envelope) Arg(dst any) error {
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}
