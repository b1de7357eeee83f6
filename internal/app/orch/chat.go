package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidUser = errors.New("invalid user")
	ErrNotMember   = errors.New("not a member of room")
	ErrNotJoined   = errors.New("chat not joined")
)

// JoinChat binds the connection to user, joins its persisted rooms and its
// self-room as one batch, then evaluates the online transition. A returned
// error is fatal for the connection.
func (o *Orchestrator) JoinChat(ctx context.Context, id core.ConnID, raw string) error {
	user, err := domain.NewUserID(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	sctx, cancel := o.storeCtx(ctx)
	rooms, err := o.Users.GetRoomMemberships(sctx, user)
	cancel()
	if errors.Is(err, core.ErrUnknownUser) {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	if err != nil {
		return fmt.Errorf("fetch rooms of %s: %w", user, err)
	}

	unlock := o.Presence.Lock(user)
	defer unlock()

	if err := o.Registry.BindUser(id, user); err != nil {
		return err
	}
	o.Registry.SetChatRooms(id, rooms)

	batch := make([]domain.RoomID, 0, len(rooms)+1)
	batch = append(batch, rooms...)
	batch = append(batch, user.SelfRoom())
	occupancy, err := o.Registry.Join(id, batch...)
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch.chat").Str("conn", string(id)).Str("user", string(user)).Int("rooms", len(rooms)).Msg("joined chat")

	if occupancy[user.SelfRoom()] == 1 {
		o.Presence.MarkOnline(ctx, user, rooms, id)
	}
	return nil
}

// SendMessage broadcasts to every member of room, sender included, then
// persists in the background. Persistence never holds up or retracts the
// broadcast.
func (o *Orchestrator) SendMessage(id core.ConnID, room domain.RoomID, content string, at domain.Timestamp) error {
	user, ok := o.Registry.LookupUser(id)
	if !ok {
		return ErrNotJoined
	}
	if !o.Rooms.IsMember(room, id) {
		return fmt.Errorf("%w: %s", ErrNotMember, room)
	}

	f, err := core.Encode(core.EvMessage, []any{user, room, content, at})
	if err != nil {
		return err
	}
	n := o.Out.Room(room, "", f)
	log.Debug().Str("module", "orch.chat").Str("user", string(user)).Str("room", string(room)).Int("sent_to", n).Msg("message")

	msg := domain.Message{Sender: user, Room: room, Content: content, SentAt: at}
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := o.storeCtx(context.Background())
		defer cancel()
		if err := o.Messages.Persist(ctx, msg); err != nil {
			log.Error().Err(err).Str("module", "orch.chat").Str("user", string(user)).Str("room", string(room)).Msg("persist message failed")
		}
	}()
	return nil
}

// MakeCall announces a fresh meeting to room. Nobody is joined to the
// meeting here; clients join it themselves.
func (o *Orchestrator) MakeCall(id core.ConnID, room domain.RoomID, at domain.Timestamp) (domain.MeetingID, error) {
	user, ok := o.Registry.LookupUser(id)
	if !ok {
		return "", ErrNotJoined
	}
	if !o.Rooms.IsMember(room, id) {
		return "", fmt.Errorf("%w: %s", ErrNotMember, room)
	}

	meeting := o.NewMeetingID()
	f, err := core.Encode(core.EvCall, []any{user, meeting, at})
	if err != nil {
		return "", err
	}
	n := o.Out.Room(room, "", f)
	log.Info().Str("module", "orch.chat").Str("user", string(user)).Str("room", string(room)).Str("meeting", string(meeting)).Int("sent_to", n).Msg("call")
	return meeting, nil
}
