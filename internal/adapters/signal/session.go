package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type handlerFunc func(ctx context.Context, env core.Envelope) error

// session is the per-connection dispatch table. Handlers are only touched
// from the connection's read pump.
type session struct {
	ctl  *SignalWSController
	id   core.ConnID
	user string
	conn *WsSignalConn

	handlers         map[string]handlerFunc
	hasJoinedChat    bool
	hasJoinedMeeting bool
}

func (ctl *SignalWSController) newSession(id core.ConnID, user string, conn *WsSignalConn) *session {
	s := &session{ctl: ctl, id: id, user: user, conn: conn}
	s.handlers = map[string]handlerFunc{
		core.EvJoinMeeting: s.handleJoinMeeting,
		core.EvJoinChat:    s.handleJoinChat,
		core.EvPing:        s.handlePing,
	}
	return s
}

func (s *session) on(event string, h handlerFunc) {
	if _, ok := s.handlers[event]; ok {
		return
	}
	s.handlers[event] = h
}

func (s *session) dispatch(ctx context.Context, data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("bad json")
		return
	}
	h, ok := s.handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("conn", string(s.id)).Str("type", env.Type).Msg("unknown signal")
		return
	}
	if err := h(ctx, env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.id)).Str("type", env.Type).Msg("event dropped")
	}
}

// fail reports an unrecoverable error to the client and disconnects it.
func (s *session) fail(message string) {
	if f, err := core.Encode(core.EvError, core.ErrorPayload{Message: message}); err == nil {
		_ = s.conn.TrySend(f)
	}
	s.conn.Close()
}

func (s *session) allow() bool {
	if s.ctl.limiter == nil {
		return true
	}
	return s.ctl.limiter.Allow(domain.UserID(s.user))
}

// forget drops rate limiter history once the user has no live connection.
func (s *session) forget() {
	if s.ctl.limiter == nil || s.user == "" {
		return
	}
	if len(s.ctl.Orch.Registry.ConnectionsOf(domain.UserID(s.user))) == 0 {
		s.ctl.limiter.Forget(domain.UserID(s.user))
	}
}

var errRateLimited = errors.New("rate limited")
