package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnNotFound  = errors.New("connection not found")
	ErrAlreadyBound  = errors.New("connection already bound to a user")
	ErrAlreadyExists = errors.New("connection already registered")
)

type connEntry struct {
	Signal    core.SignalConnection
	User      domain.UserID
	ChatRooms []domain.RoomID
}

// Target is a point-in-time view of a live connection, safe to push to
// outside the registry lock.
type Target struct {
	ID     core.ConnID
	Signal core.SignalConnection
}

// Departure describes what an unregistered connection left behind.
type Departure struct {
	User      domain.UserID
	ChatRooms []domain.RoomID
	// Rooms maps every room the connection was in to its occupancy after
	// the connection left.
	Rooms map[domain.RoomID]int
}

// Registry owns live connections and their user identity. Room membership
// changes go through it so they are never applied to a connection that is
// being unregistered.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
	users map[domain.UserID]connSet
	rooms *RoomIndex
}

func NewRegistry(rooms *RoomIndex) *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*connEntry),
		users: make(map[domain.UserID]connSet),
		rooms: rooms,
	}
}

func (r *Registry) Rooms() *RoomIndex { return r.rooms }

func (r *Registry) Register(id core.ConnID, sig core.SignalConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return ErrAlreadyExists
	}
	r.conns[id] = &connEntry{Signal: sig}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return nil
}

// BindUser sets the user identity of a connection exactly once.
func (r *Registry) BindUser(id core.ConnID, user domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return ErrConnNotFound
	}
	if e.User != "" {
		return ErrAlreadyBound
	}
	e.User = user
	set, ok := r.users[user]
	if !ok {
		set = make(connSet)
		r.users[user] = set
	}
	set[id] = struct{}{}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user)).Msg("bound user")
	return nil
}

// Unregister removes the connection and all its room memberships in one
// step. A second call for the same id is a no-op and reports false.
func (r *Registry) Unregister(id core.ConnID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return Departure{}, false
	}
	delete(r.conns, id)
	if e.User != "" {
		if set, ok := r.users[e.User]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.users, e.User)
			}
		}
	}
	d := Departure{
		User:      e.User,
		ChatRooms: e.ChatRooms,
		Rooms:     r.rooms.LeaveAll(id),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Int("rooms", len(d.Rooms)).Msg("unregistered connection")
	return d, true
}

func (r *Registry) LookupUser(id core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.User == "" {
		return "", false
	}
	return e.User, true
}

func (r *Registry) ConnectionsOf(user domain.UserID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[user]
	out := make([]core.ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Join applies a batch of room joins for a registered connection and
// returns the occupancy of each joined room.
func (r *Registry) Join(id core.ConnID, rooms ...domain.RoomID) (map[domain.RoomID]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.conns[id]; !ok {
		return nil, ErrConnNotFound
	}
	return r.rooms.JoinAll(id, rooms...), nil
}

// SetChatRooms records the persisted rooms fetched at chat join; presence
// transitions of the connection's user are announced there.
func (r *Registry) SetChatRooms(id core.ConnID, rooms []domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.ChatRooms = rooms
	}
}

func (r *Registry) Get(id core.ConnID) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return Target{}, false
	}
	return Target{ID: id, Signal: e.Signal}, true
}

// Snapshot resolves ids to live targets, skipping the ones already gone.
func (r *Registry) Snapshot(ids []core.ConnID) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.conns[id]; ok {
			out = append(out, Target{ID: id, Signal: e.Signal})
		}
	}
	return out
}

// Kick closes the transport of a connection. Cleanup follows through the
// adapter's normal disconnect path.
func (r *Registry) Kick(id core.ConnID) bool {
	t, ok := r.Get(id)
	if !ok {
		return false
	}
	t.Signal.Close()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("kicked connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every live transport, used on shutdown.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	sigs := make([]core.SignalConnection, 0, len(r.conns))
	for _, e := range r.conns {
		sigs = append(sigs, e.Signal)
	}
	r.mu.RUnlock()

	for _, s := range sigs {
		s.Close()
	}
	return len(sigs)
}
