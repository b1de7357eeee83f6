package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type connSet map[core.ConnID]struct{}

// RoomIndex maps rooms to joined connections and connections to their rooms.
// Both directions are updated under one lock.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]connSet
	conns map[core.ConnID]map[domain.RoomID]struct{}
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		rooms: make(map[domain.RoomID]connSet),
		conns: make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join adds conn to room and returns the occupancy afterwards.
func (x *RoomIndex) Join(room domain.RoomID, conn core.ConnID) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.join(room, conn)
}

// JoinAll applies a batch of joins as one step. The returned map holds the
// occupancy of every room in the batch once the whole batch is applied.
func (x *RoomIndex) JoinAll(conn core.ConnID, rooms ...domain.RoomID) map[domain.RoomID]int {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, room := range rooms {
		x.join(room, conn)
	}
	out := make(map[domain.RoomID]int, len(rooms))
	for _, room := range rooms {
		out[room] = len(x.rooms[room])
	}
	return out
}

func (x *RoomIndex) join(room domain.RoomID, conn core.ConnID) int {
	members, ok := x.rooms[room]
	if !ok {
		members = make(connSet)
		x.rooms[room] = members
	}
	members[conn] = struct{}{}
	joined, ok := x.conns[conn]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		x.conns[conn] = joined
	}
	joined[room] = struct{}{}
	return len(members)
}

// Leave removes conn from room and returns the remaining occupancy.
// An emptied room is pruned.
func (x *RoomIndex) Leave(room domain.RoomID, conn core.ConnID) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.leave(room, conn)
}

// LeaveAll removes conn from every room it joined and reports the occupancy
// left behind in each of them.
func (x *RoomIndex) LeaveAll(conn core.ConnID) map[domain.RoomID]int {
	x.mu.Lock()
	defer x.mu.Unlock()
	joined := x.conns[conn]
	out := make(map[domain.RoomID]int, len(joined))
	for room := range joined {
		out[room] = x.leave(room, conn)
	}
	return out
}

func (x *RoomIndex) leave(room domain.RoomID, conn core.ConnID) int {
	if joined, ok := x.conns[conn]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(x.conns, conn)
		}
	}
	members, ok := x.rooms[room]
	if !ok {
		return 0
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(x.rooms, room)
		return 0
	}
	return len(members)
}

func (x *RoomIndex) MembersOf(room domain.RoomID) []core.ConnID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	members := x.rooms[room]
	out := make([]core.ConnID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (x *RoomIndex) RoomsOf(conn core.ConnID) []domain.RoomID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	joined := x.conns[conn]
	out := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	return out
}

func (x *RoomIndex) IsMember(room domain.RoomID, conn core.ConnID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.rooms[room][conn]
	return ok
}

func (x *RoomIndex) Occupancy(room domain.RoomID) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.rooms[room])
}

func (x *RoomIndex) List() []RoomInfo {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]RoomInfo, 0, len(x.rooms))
	for id, members := range x.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
