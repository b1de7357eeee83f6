package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

func (s *session) handleJoinChat(ctx context.Context, _ core.Envelope) error {
	if s.hasJoinedChat {
		log.Info().Str("module", "signal").Str("conn", string(s.id)).Msg("join-chat repeated, ignored")
		return nil
	}
	if s.user == "" {
		s.fail("Invalid user")
		return orch.ErrInvalidUser
	}
	if err := s.ctl.Orch.JoinChat(ctx, s.id, s.user); err != nil {
		if errors.Is(err, orch.ErrInvalidUser) {
			s.fail("Invalid user")
		} else {
			log.Error().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("join-chat failed")
			s.fail("Internal Server Error")
		}
		return err
	}
	s.hasJoinedChat = true
	s.on(core.EvSendMessage, s.handleSendMessage)
	s.on(core.EvMakeCall, s.handleMakeCall)
	return nil
}

// send-message: [roomId, content, timestamp]
func (s *session) handleSendMessage(_ context.Context, env core.Envelope) error {
	if !s.allow() {
		return errRateLimited
	}
	var (
		rawRoom string
		content string
		at      domain.Timestamp
	)
	if err := env.Args(&rawRoom, &content, &at); err != nil {
		return err
	}
	room, err := domain.NewRoomID(rawRoom)
	if err != nil {
		return err
	}
	return s.ctl.Orch.SendMessage(s.id, room, content, at)
}

// make-call: [roomId, timestamp]
func (s *session) handleMakeCall(_ context.Context, env core.Envelope) error {
	if !s.allow() {
		return errRateLimited
	}
	var (
		rawRoom string
		at      domain.Timestamp
	)
	if err := env.Args(&rawRoom, &at); err != nil {
		return err
	}
	room, err := domain.NewRoomID(rawRoom)
	if err != nil {
		return err
	}
	_, err = s.ctl.Orch.MakeCall(s.id, room, at)
	return err
}
