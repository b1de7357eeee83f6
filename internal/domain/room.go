package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxRoomIDLen = 64

// Key prefixes keep meeting and self rooms apart from chat rooms in the
// shared membership index.
const (
	meetingPrefix = "meeting:"
	selfPrefix    = "user:"
)

var (
	ErrReservedRoomID = errors.New("reserved room id")
	ErrBadMeetingID   = errors.New("meeting id is not a uuid")
)

type (
	RoomID    string
	MeetingID string
)

// NewRoomID validates a chat room id supplied by a client. Ids in the
// meeting or self room key space are refused.
func NewRoomID(raw string) (RoomID, error) {
	if len(raw) == 0 {
		return "", ErrEmptyID
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrIDTooLong
	}
	if strings.HasPrefix(raw, meetingPrefix) || strings.HasPrefix(raw, selfPrefix) {
		return "", ErrReservedRoomID
	}
	return RoomID(raw), nil
}

// NewMeetingID returns a fresh identifier for an ephemeral call room.
func NewMeetingID() MeetingID {
	return MeetingID(uuid.NewString())
}

// ParseMeetingID accepts only ids shaped like the ones NewMeetingID hands out.
func ParseMeetingID(raw string) (MeetingID, error) {
	if len(raw) == 0 {
		return "", ErrEmptyID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrBadMeetingID
	}
	return MeetingID(id.String()), nil
}

// Room returns the meeting's key in the membership index.
func (m MeetingID) Room() RoomID { return RoomID(meetingPrefix + string(m)) }
