package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator runs the per-connection operations against the shared
// registry and room index. It holds no connection state of its own.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomIndex
	Presence *app.PresenceTracker
	Out      *app.Broadcaster
	Users    core.UsersStore
	Messages core.MessageStore

	// StoreTimeout bounds every collaborator call; zero means no bound.
	StoreTimeout time.Duration
	// NewMeetingID is swapped in tests.
	NewMeetingID func() domain.MeetingID

	pending sync.WaitGroup
}

func New(reg *app.Registry, presence *app.PresenceTracker, out *app.Broadcaster, users core.UsersStore, messages core.MessageStore, storeTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Registry:     reg,
		Rooms:        reg.Rooms(),
		Presence:     presence,
		Out:          out,
		Users:        users,
		Messages:     messages,
		StoreTimeout: storeTimeout,
		NewMeetingID: domain.NewMeetingID,
	}
}

// Connect registers a fresh transport session. It counts as pending work
// for Wait until OnDisconnect removes it.
func (o *Orchestrator) Connect(id core.ConnID, sig core.SignalConnection) error {
	if err := o.Registry.Register(id, sig); err != nil {
		return err
	}
	o.pending.Add(1)
	return nil
}

// OnDisconnect removes the connection from every room and, when it was the
// last chat connection of its user, fires the offline transition. Repeated
// calls are no-ops.
func (o *Orchestrator) OnDisconnect(ctx context.Context, id core.ConnID) {
	// The connection context is usually cancelled by now.
	ctx = context.WithoutCancel(ctx)
	user, bound := o.Registry.LookupUser(id)
	if !bound {
		dep, ok := o.Registry.Unregister(id)
		if !ok {
			return
		}
		defer o.pending.Done()
		if dep.User != "" {
			// Bound after the lookup: the join may still be in flight.
			o.settleLate(ctx, dep)
			return
		}
		log.Info().Str("module", "orch").Str("conn", string(id)).Msg("anonymous connection left")
		return
	}

	unlock := o.Presence.Lock(user)
	defer unlock()

	dep, ok := o.Registry.Unregister(id)
	if !ok {
		return
	}
	defer o.pending.Done()
	occupancy, wasInSelfRoom := dep.Rooms[user.SelfRoom()]
	if !wasInSelfRoom || occupancy > 0 {
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("user", string(user)).Msg("connection left, user still reachable")
		return
	}
	o.Presence.MarkOffline(ctx, user, dep.ChatRooms)
}

// settleLate waits for the user's in-flight join and marks the user offline
// if that join left it online with no connection in its self-room.
func (o *Orchestrator) settleLate(ctx context.Context, dep app.Departure) {
	unlock := o.Presence.Lock(dep.User)
	defer unlock()
	if o.Rooms.Occupancy(dep.User.SelfRoom()) > 0 || o.Presence.State(dep.User) != app.Online {
		return
	}
	o.Presence.MarkOffline(ctx, dep.User, dep.ChatRooms)
}

// Wait blocks until every connection has disconnected and pending async
// persistence has finished, or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.StoreTimeout)
}
