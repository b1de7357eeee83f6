package app

import (
	"errors"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Broadcaster pushes frames to room members. Member sets are copied under
// the index lock and pushed to outside of it.
type Broadcaster struct {
	Registry *Registry
	Policy   Policy
}

func NewBroadcaster(reg *Registry, policy Policy) *Broadcaster {
	return &Broadcaster{Registry: reg, Policy: policy}
}

// Room sends f to every member of room except one connection (pass "" to
// include everybody) and returns the number of successful pushes.
func (b *Broadcaster) Room(room domain.RoomID, except core.ConnID, f core.Frame) int {
	return b.Rooms([]domain.RoomID{room}, except, f)
}

// Rooms sends f once to every connection in the union of rooms.
func (b *Broadcaster) Rooms(rooms []domain.RoomID, except core.ConnID, f core.Frame) int {
	index := b.Registry.Rooms()
	seen := make(map[core.ConnID]struct{})
	ids := make([]core.ConnID, 0)
	for _, room := range rooms {
		for _, id := range index.MembersOf(room) {
			if id == except {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return b.push(b.Registry.Snapshot(ids), f)
}

// To sends f to one connection. Unknown connections are reported with false.
func (b *Broadcaster) To(id core.ConnID, f core.Frame) bool {
	t, ok := b.Registry.Get(id)
	if !ok {
		return false
	}
	return b.push([]Target{t}, f) == 1
}

func (b *Broadcaster) push(targets []Target, f core.Frame) int {
	sent := 0
	for _, t := range targets {
		if err := t.Signal.TrySend(f); err != nil {
			b.onDropped(t, err)
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.broadcast").Int("sent_to", sent).Int("targets", len(targets)).Msg("broadcast result")
	return sent
}

func (b *Broadcaster) onDropped(t Target, err error) {
	if errors.Is(err, core.ErrConnClosed) {
		log.Debug().Str("module", "app.broadcast").Str("conn", string(t.ID)).Msg("target already closed")
		return
	}
	log.Warn().Err(err).Str("module", "app.broadcast").Str("conn", string(t.ID)).Msg("push failed")
	if b.Policy == nil {
		return
	}
	switch b.Policy.OnBackPressure(t.ID) {
	case KickMember:
		b.Registry.Kick(t.ID)
	case DropFrame, NoAction:
	}
}
