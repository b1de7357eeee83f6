package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type PresenceState int

const (
	Offline PresenceState = iota
	Online
)

func (s PresenceState) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// PresenceTracker turns self-room occupancy crossings into online/offline
// transitions. Callers hold Lock(user) across the membership change that
// detects a crossing and the matching Mark call, so transitions of one user
// are applied in the order they happened.
type PresenceTracker struct {
	users   core.UsersStore
	out     *Broadcaster
	timeout time.Duration

	mu    sync.Mutex
	state map[domain.UserID]PresenceState
	locks map[domain.UserID]*userLock
}

func NewPresenceTracker(users core.UsersStore, out *Broadcaster, timeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		users:   users,
		out:     out,
		timeout: timeout,
		state:   make(map[domain.UserID]PresenceState),
		locks:   make(map[domain.UserID]*userLock),
	}
}

// Lock serialises presence-relevant work for one user.
func (p *PresenceTracker) Lock(user domain.UserID) (unlock func()) {
	p.mu.Lock()
	l, ok := p.locks[user]
	if !ok {
		l = &userLock{}
		p.locks[user] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, user)
		}
		p.mu.Unlock()
	}
}

func (p *PresenceTracker) State(user domain.UserID) PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[user]
}

// MarkOnline handles a 0->1 crossing. The online flag is persisted first;
// the event reaches rooms only if that succeeded. It reports whether a
// transition happened.
func (p *PresenceTracker) MarkOnline(ctx context.Context, user domain.UserID, rooms []domain.RoomID, except core.ConnID) bool {
	if !p.transition(user, Online) {
		return false
	}
	if !p.persist(ctx, user, true) {
		return true
	}
	n := p.out.Rooms(rooms, except, core.MustEncode(core.EvOnline, user))
	log.Info().Str("module", "app.presence").Str("user", string(user)).Int("notified", n).Msg("user online")
	return true
}

// MarkOffline handles an N->0 crossing.
func (p *PresenceTracker) MarkOffline(ctx context.Context, user domain.UserID, rooms []domain.RoomID) bool {
	if !p.transition(user, Offline) {
		return false
	}
	if !p.persist(ctx, user, false) {
		return true
	}
	n := p.out.Rooms(rooms, "", core.MustEncode(core.EvOffline, user))
	log.Info().Str("module", "app.presence").Str("user", string(user)).Int("notified", n).Msg("user offline")
	return true
}

func (p *PresenceTracker) transition(user domain.UserID, to PresenceState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state[user] == to {
		log.Warn().Str("module", "app.presence").Str("user", string(user)).Stringer("state", to).Msg("duplicate transition ignored")
		return false
	}
	if to == Offline {
		delete(p.state, user)
	} else {
		p.state[user] = to
	}
	return true
}

func (p *PresenceTracker) persist(ctx context.Context, user domain.UserID, online bool) bool {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.users.SetOnlineFlag(ctx, user, online); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(user)).Bool("online", online).Msg("persist presence flag failed, event suppressed")
		return false
	}
	return true
}
