package orch

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// JoinMeeting adds the connection to the meeting room and introduces it to
// the members already there.
func (o *Orchestrator) JoinMeeting(id core.ConnID, meeting domain.MeetingID) error {
	if _, err := o.Registry.Join(id, meeting.Room()); err != nil {
		return err
	}
	n := o.Out.Room(meeting.Room(), id, core.MustEncode(core.EvNewPeer, id))
	log.Info().Str("module", "orch.meeting").Str("conn", string(id)).Str("meeting", string(meeting)).Int("peers", n).Msg("joined meeting")
	return nil
}

// Relay forwards an offer, answer or ICE candidate to exactly one target as
// [sender, payload]. A target that is gone is dropped silently.
func (o *Orchestrator) Relay(kind string, from, to core.ConnID, payload json.RawMessage) bool {
	if to == from {
		return false
	}
	f, err := core.Encode(kind, []any{from, payload})
	if err != nil {
		log.Warn().Err(err).Str("module", "orch.meeting").Str("conn", string(from)).Msg("bad signaling payload")
		return false
	}
	if !o.Out.To(to, f) {
		log.Debug().Str("module", "orch.meeting").Str("from", string(from)).Str("to", string(to)).Str("kind", kind).Msg("signaling target gone")
		return false
	}
	return true
}
