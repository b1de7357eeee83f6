package domain

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// MaxEpochMillis bounds numeric timestamps to the range a JavaScript Date
// can represent.
const MaxEpochMillis = 8.64e15

var ErrBadTimestamp = errors.New("bad timestamp")

// Timestamp is a client supplied instant. The raw JSON form is kept so it can
// be relayed to other clients unchanged.
type Timestamp struct {
	Time time.Time
	raw  json.RawMessage
}

func NewTimestamp(t time.Time) Timestamp {
	raw, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return Timestamp{Time: t, raw: raw}
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrBadTimestamp
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrBadTimestamp
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return ErrBadTimestamp
		}
		ts.Time = t
	default:
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil || math.IsNaN(ms) || math.Abs(ms) > MaxEpochMillis {
			return ErrBadTimestamp
		}
		ts.Time = time.UnixMilli(int64(ms))
	}
	ts.raw = append(ts.raw[:0], data...)
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if len(ts.raw) == 0 {
		return json.Marshal(ts.Time.UTC().Format(time.RFC3339Nano))
	}
	return ts.raw, nil
}

// Message is a chat message as relayed and persisted.
type Message struct {
	Sender  UserID
	Room    RoomID
	Content string
	SentAt  Timestamp
}
