package orch

import (
	"context"
	"testing"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestJoinChat_PresenceAcrossConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rooms := []domain.RoomID{"r1"}

	h.users.EXPECT().GetRoomMemberships(gomock.Any(), domain.UserID("u2")).Return(rooms, nil)
	h.users.EXPECT().GetRoomMemberships(gomock.Any(), domain.UserID("u1")).Return(rooms, nil).Times(2)
	h.users.EXPECT().SetOnlineFlag(gomock.Any(), domain.UserID("u2"), true).Return(nil)
	gomock.InOrder(
		h.users.EXPECT().SetOnlineFlag(gomock.Any(), domain.UserID("u1"), true).Return(nil),
		h.users.EXPECT().SetOnlineFlag(gomock.Any(), domain.UserID("u1"), false).Return(nil),
	)

	peer := h.connect(t, "p")
	require.NoError(t, h.o.JoinChat(ctx, "p", "u2"))

	first := h.connect(t, "c1")
	second := h.connect(t, "c2")
	require.NoError(t, h.o.JoinChat(ctx, "c1", "u1"))
	require.NoError(t, h.o.JoinChat(ctx, "c2", "u1"))

	assert.Equal(t, 1, peer.Count(core.EvOnline), "second tab does not re-announce")
	assert.JSONEq(t, `"u1"`, string(peer.Data(core.EvOnline, 0)))
	assert.Equal(t, 0, first.Count(core.EvOnline))

	h.o.OnDisconnect(ctx, "c1")
	assert.Equal(t, 0, peer.Count(core.EvOffline), "user still has a connection")

	h.o.OnDisconnect(ctx, "c2")
	assert.Equal(t, 1, peer.Count(core.EvOffline))
	assert.JSONEq(t, `"u1"`, string(peer.Data(core.EvOffline, 0)))
	assert.Equal(t, 0, second.Count(core.EvOffline), "departed connection is not notified")
}

func TestJoinChat_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a")

	assert.ErrorIs(t, h.o.JoinChat(ctx, "a", ""), ErrInvalidUser)

	h.users.EXPECT().GetRoomMemberships(gomock.Any(), domain.UserID("ghost")).Return(nil, core.ErrUnknownUser)
	assert.ErrorIs(t, h.o.JoinChat(ctx, "a", "ghost"), ErrInvalidUser)

	h.users.EXPECT().GetRoomMemberships(gomock.Any(), domain.UserID("u1")).Return(nil, errDB)
	err := h.o.JoinChat(ctx, "a", "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidUser)
	assert.ErrorIs(t, err, errDB)

	_, bound := h.o.Registry.LookupUser("a")
	assert.False(t, bound)
}

func TestJoinChat_PersistFailureStillJoins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.users.EXPECT().GetRoomMemberships(gomock.Any(), domain.UserID("u1")).Return([]domain.RoomID{"r1"}, nil)
	h.users.EXPECT().SetOnlineFlag(gomock.Any(), domain.UserID("u1"), true).Return(errDB)

	h.connect(t, "a")
	require.NoError(t, h.o.JoinChat(ctx, "a", "u1"))
	assert.True(t, h.o.Rooms.IsMember("r1", "a"))
	assert.True(t, h.o.Rooms.IsMember(domain.UserID("u1").SelfRoom(), "a"), "self-room joined")
}

func joined(t *testing.T, h *harness, id core.ConnID, user domain.UserID, rooms ...domain.RoomID) {
	t.Helper()
	h.users.EXPECT().GetRoomMemberships(gomock.Any(), user).Return(rooms, nil)
	h.users.EXPECT().SetOnlineFlag(gomock.Any(), user, gomock.Any()).Return(nil).AnyTimes()
	require.NoError(t, h.o.JoinChat(context.Background(), id, string(user)))
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t)
	sender := h.connect(t, "a")
	member := h.connect(t, "b")
	outsider := h.connect(t, "c")
	joined(t, h, "a", "u1", "r1")
	joined(t, h, "b", "u2", "r1")
	joined(t, h, "c", "u3", "r2")

	persisted := make(chan domain.Message, 1)
	h.msgs.EXPECT().Persist(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m domain.Message) error {
		persisted <- m
		return errDB
	})

	require.NoError(t, h.o.SendMessage("a", "r1", "hello", stamp(t, `1714557600000`)))

	for _, s := range []interface{ Count(string) int }{sender, member} {
		assert.Equal(t, 1, s.Count(core.EvMessage), "sender is included")
	}
	assert.Equal(t, 0, outsider.Count(core.EvMessage))
	assert.JSONEq(t, `["u1","r1","hello",1714557600000]`, string(member.Data(core.EvMessage, 0)))

	m := <-persisted
	assert.Equal(t, domain.UserID("u1"), m.Sender)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, 1, member.Count(core.EvMessage), "a failed write does not retract the broadcast")
}

func TestSendMessage_Rejects(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "anon")
	assert.ErrorIs(t, h.o.SendMessage("anon", "r1", "x", stamp(t, `1`)), ErrNotJoined)

	h.connect(t, "a")
	joined(t, h, "a", "u1", "r1")
	assert.ErrorIs(t, h.o.SendMessage("a", "r2", "x", stamp(t, `1`)), ErrNotMember)
}

func TestMakeCall(t *testing.T) {
	h := newHarness(t)
	h.o.NewMeetingID = func() domain.MeetingID { return "m-1" }
	caller := h.connect(t, "a")
	callee := h.connect(t, "b")
	joined(t, h, "a", "u1", "r1")
	joined(t, h, "b", "u2", "r1")

	meeting, err := h.o.MakeCall("a", "r1", stamp(t, `"2024-05-01T10:00:00Z"`))
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingID("m-1"), meeting)
	assert.JSONEq(t, `["u1","m-1","2024-05-01T10:00:00Z"]`, string(callee.Data(core.EvCall, 0)))
	assert.Equal(t, 1, caller.Count(core.EvCall))
	assert.Equal(t, 0, h.o.Rooms.Occupancy(domain.MeetingID("m-1").Room()), "nobody is placed in the meeting")

	_, err = h.o.MakeCall("a", "r9", stamp(t, `1`))
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestJoinChat_MeetingNamedAfterUserKeepsPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	peer := h.connect(t, "p")
	joined(t, h, "p", "u2", "r1")
	require.NoError(t, h.o.JoinMeeting("p", domain.MeetingID("u1")))

	h.users.EXPECT().GetRoomMemberships(gomock.Any(), domain.UserID("u1")).Return([]domain.RoomID{"r1"}, nil)
	gomock.InOrder(
		h.users.EXPECT().SetOnlineFlag(gomock.Any(), domain.UserID("u1"), true).Return(nil),
		h.users.EXPECT().SetOnlineFlag(gomock.Any(), domain.UserID("u1"), false).Return(nil),
	)

	h.connect(t, "c")
	require.NoError(t, h.o.JoinChat(ctx, "c", "u1"))
	assert.Equal(t, 1, h.o.Rooms.Occupancy(domain.UserID("u1").SelfRoom()))
	h.o.OnDisconnect(ctx, "c")

	assert.Equal(t, 1, peer.Count(core.EvOnline))
	assert.Equal(t, 1, peer.Count(core.EvOffline))
	assert.True(t, h.o.Rooms.IsMember(domain.MeetingID("u1").Room(), "p"), "meeting is untouched")
}

func TestSendMessage_MeetingNamedAfterRoomGrantsNothing(t *testing.T) {
	h := newHarness(t)
	member := h.connect(t, "b")
	joined(t, h, "b", "u2", "r1")
	h.connect(t, "x")
	joined(t, h, "x", "u3")

	require.NoError(t, h.o.JoinMeeting("x", domain.MeetingID("r1")))
	assert.False(t, h.o.Rooms.IsMember("r1", "x"))

	assert.ErrorIs(t, h.o.SendMessage("x", "r1", "hi", stamp(t, `1`)), ErrNotMember)
	_, err := h.o.MakeCall("x", "r1", stamp(t, `1`))
	assert.ErrorIs(t, err, ErrNotMember)

	assert.Equal(t, 0, member.Count(core.EvMessage))
	assert.Equal(t, 0, member.Count(core.EvCall))
	assert.Equal(t, 0, member.Count(core.EvNewPeer))
}
