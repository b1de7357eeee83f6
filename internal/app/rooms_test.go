package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIndex_JoinLeave(t *testing.T) {
	x := NewRoomIndex()

	assert.Equal(t, 1, x.Join("r1", "a"))
	assert.Equal(t, 1, x.Join("r1", "a"), "join is idempotent")
	assert.Equal(t, 2, x.Join("r1", "b"))
	assert.True(t, x.IsMember("r1", "a"))
	assert.ElementsMatch(t, []core.ConnID{"a", "b"}, x.MembersOf("r1"))

	assert.Equal(t, 1, x.Leave("r1", "a"))
	assert.Equal(t, 0, x.Leave("r1", "b"))
	assert.Equal(t, 0, x.Occupancy("r1"))
	assert.Empty(t, x.List(), "emptied rooms are pruned")
	assert.Empty(t, x.RoomsOf("a"))
}

func TestRoomIndex_JoinAllReportsBatchOccupancy(t *testing.T) {
	x := NewRoomIndex()
	x.Join("shared", "b")

	occ := x.JoinAll("a", "shared", "solo", "a-self")
	assert.Equal(t, map[domain.RoomID]int{"shared": 2, "solo": 1, "a-self": 1}, occ)
	assert.ElementsMatch(t, []domain.RoomID{"shared", "solo", "a-self"}, x.RoomsOf("a"))

	left := x.LeaveAll("a")
	assert.Equal(t, map[domain.RoomID]int{"shared": 1, "solo": 0, "a-self": 0}, left)
	assert.Empty(t, x.LeaveAll("a"), "second leave-all is a no-op")
}

func TestRoomIndex_List(t *testing.T) {
	x := NewRoomIndex()
	x.JoinAll("a", "r2", "r1")
	x.Join("r2", "b")

	assert.Equal(t, []RoomInfo{{ID: "r1", MemberCount: 1}, {ID: "r2", MemberCount: 2}}, x.List())
}

// Both directions of the index must agree after any interleaving.
func TestRoomIndex_ConcurrentConsistency(t *testing.T) {
	x := NewRoomIndex()
	rooms := []domain.RoomID{"r0", "r1", "r2", "r3"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := core.ConnID(fmt.Sprintf("c%d", i))
			for j := 0; j < 20; j++ {
				x.JoinAll(conn, rooms...)
				x.Leave(rooms[j%len(rooms)], conn)
				if j%3 == 0 {
					x.LeaveAll(conn)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, room := range rooms {
		for _, conn := range x.MembersOf(room) {
			require.Contains(t, x.RoomsOf(conn), room)
		}
	}
	for i := 0; i < 50; i++ {
		conn := core.ConnID(fmt.Sprintf("c%d", i))
		for _, room := range x.RoomsOf(conn) {
			require.True(t, x.IsMember(room, conn))
		}
	}
}
