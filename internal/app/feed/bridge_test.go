package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/core/mocks"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sent struct {
	room domain.RoomID
	typ  string
}

type recorder struct {
	mu    sync.Mutex
	sends []sent
}

func (r *recorder) Room(room domain.RoomID, _ core.ConnID, f core.Frame) int {
	env, err := core.Decode(f)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sent{room: room, typ: env.Type})
	return 1
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sends...)
}

func TestTranslate(t *testing.T) {
	rooms, users := DefaultRules("rooms", "users")[0], DefaultRules("rooms", "users")[1]

	tests := []struct {
		name    string
		rule    Rule
		ev      core.ChangeEvent
		want    Signal
		ok      bool
		wantErr error
	}{
		{
			name: "participant appended",
			rule: rooms,
			ev:   core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"participants.2"}},
			want: Signal{Room: "R", Event: core.EvRoomChanged},
			ok:   true,
		},
		{
			name: "participants replaced",
			rule: rooms,
			ev:   core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"title", "participants"}},
			want: Signal{Room: "R", Event: core.EvRoomChanged},
			ok:   true,
		},
		{
			name: "title only",
			rule: rooms,
			ev:   core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"title"}},
		},
		{
			name: "lookalike field",
			rule: rooms,
			ev:   core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"participantsCount", "participants.x"}},
		},
		{
			name: "insert",
			rule: rooms,
			ev:   core.ChangeEvent{OperationType: "insert", DocumentID: "R", UpdatedFields: []string{"participants"}},
		},
		{
			name: "invitation to user self-room",
			rule: users,
			ev:   core.ChangeEvent{OperationType: "update", DocumentID: "U", UpdatedFields: []string{"invitations.0"}},
			want: Signal{Room: "user:U", Event: core.EvInvitationChanged},
			ok:   true,
		},
		{
			name:    "missing document id",
			rule:    rooms,
			ev:      core.ChangeEvent{OperationType: "update", UpdatedFields: []string{"participants.1"}},
			wantErr: ErrNoDocumentID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Translate(tt.rule, tt.ev)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestHandle_RecoversFromPanics(t *testing.T) {
	out := &recorder{}
	b := New(nil, out, nil)
	rule := Rule{
		Collection: "rooms",
		Field:      ParticipantsField,
		Event:      core.EvRoomChanged,
		Target:     func(string) domain.RoomID { panic("boom") },
	}
	ev := core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"participants.0"}}

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, b.Handle(rule, ev))
	})
	assert.Empty(t, out.all())
}

func TestRun_BridgesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockChangeFeed(ctrl)
	out := &recorder{}
	b := New(feed, out, DefaultRules("rooms", "users"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delivered sync.WaitGroup
	delivered.Add(2)
	feed.EXPECT().Watch(gomock.Any(), "rooms", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, fn func(core.ChangeEvent)) error {
			fn(core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"participants.2"}})
			fn(core.ChangeEvent{OperationType: "update", DocumentID: "R", UpdatedFields: []string{"title"}})
			fn(core.ChangeEvent{OperationType: "update", UpdatedFields: []string{"participants.3"}})
			delivered.Done()
			<-ctx.Done()
			return ctx.Err()
		})
	feed.EXPECT().Watch(gomock.Any(), "users", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, fn func(core.ChangeEvent)) error {
			fn(core.ChangeEvent{OperationType: "update", DocumentID: "U", UpdatedFields: []string{"invitations"}})
			delivered.Done()
			<-ctx.Done()
			return ctx.Err()
		})

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	delivered.Wait()
	cancel()

	require.NoError(t, <-done, "cancellation is a clean stop")
	assert.ElementsMatch(t, []sent{
		{room: "R", typ: core.EvRoomChanged},
		{room: "user:U", typ: core.EvInvitationChanged},
	}, out.all())
}

func TestRun_FeedFailureIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockChangeFeed(ctrl)
	b := New(feed, &recorder{}, DefaultRules("rooms", "users"))
	streamErr := errors.New("stream reset")

	feed.EXPECT().Watch(gomock.Any(), "rooms", gomock.Any()).Return(streamErr)
	feed.EXPECT().Watch(gomock.Any(), "users", gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ func(core.ChangeEvent)) error {
			<-ctx.Done()
			return ctx.Err()
		})

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, streamErr)
}

func TestRun_ClosedFeed(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockChangeFeed(ctrl)
	b := New(feed, &recorder{}, DefaultRules("rooms", "users")[:1])

	feed.EXPECT().Watch(gomock.Any(), "rooms", gomock.Any()).Return(nil)

	assert.ErrorIs(t, b.Run(context.Background()), ErrFeedClosed)
}
