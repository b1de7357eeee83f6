package signal

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/goccy/go-json"
)

func (s *session) handleJoinMeeting(_ context.Context, env core.Envelope) error {
	var raw string
	if err := env.Arg(&raw); err != nil {
		return err
	}
	meeting, err := domain.ParseMeetingID(raw)
	if err != nil {
		return err
	}
	if err := s.ctl.Orch.JoinMeeting(s.id, meeting); err != nil {
		return err
	}
	if !s.hasJoinedMeeting {
		s.hasJoinedMeeting = true
		s.on(core.EvOffer, s.relay)
		s.on(core.EvAnswer, s.relay)
		s.on(core.EvICECandidate, s.relay)
	}
	return nil
}

// offer, answer, ice-candidate: [targetConnectionId, payload]
func (s *session) relay(_ context.Context, env core.Envelope) error {
	var (
		target  string
		payload json.RawMessage
	)
	if err := env.Args(&target, &payload); err != nil {
		return err
	}
	s.ctl.Orch.Relay(env.Type, s.id, core.ConnID(target), payload)
	return nil
}
