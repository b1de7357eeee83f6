// Package feed bridges document change feeds into live room events. The
// bridge only signals that something changed; clients re-fetch state.
package feed

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ParticipantsField = regexp.MustCompile(`^participants(?:\.\d+)?$`)
	InvitationsField  = regexp.MustCompile(`^invitations(?:\.\d+)?$`)

	ErrNoDocumentID = errors.New("change event without document id")
	ErrFeedClosed   = errors.New("change feed closed")
)

// Rule turns matching updates of one collection into one outbound event.
type Rule struct {
	Collection string
	Field      *regexp.Regexp
	Event      string
	// Target maps the mutated document id to the room to notify.
	Target func(docID string) domain.RoomID
}

// Signal is a translated change, ready to broadcast.
type Signal struct {
	Room  domain.RoomID
	Event string
}

// Sender is the part of the broadcaster the bridge needs.
type Sender interface {
	Room(room domain.RoomID, except core.ConnID, f core.Frame) int
}

type Bridge struct {
	Feed  core.ChangeFeed
	Out   Sender
	Rules []Rule
}

// DefaultRules watches room participants and user invitations.
func DefaultRules(roomsCollection, usersCollection string) []Rule {
	return []Rule{
		{
			Collection: roomsCollection,
			Field:      ParticipantsField,
			Event:      core.EvRoomChanged,
			Target:     func(id string) domain.RoomID { return domain.RoomID(id) },
		},
		{
			Collection: usersCollection,
			Field:      InvitationsField,
			Event:      core.EvInvitationChanged,
			Target:     func(id string) domain.RoomID { return domain.UserID(id).SelfRoom() },
		},
	}
}

func New(feed core.ChangeFeed, out Sender, rules []Rule) *Bridge {
	return &Bridge{Feed: feed, Out: out, Rules: rules}
}

// Translate is the pure filter step of a rule. Events that do not concern
// the rule report false with a nil error.
func Translate(rule Rule, ev core.ChangeEvent) (Signal, bool, error) {
	if ev.OperationType != core.OperationUpdate {
		return Signal{}, false, nil
	}
	matched := false
	for _, field := range ev.UpdatedFields {
		if rule.Field.MatchString(field) {
			matched = true
			break
		}
	}
	if !matched {
		return Signal{}, false, nil
	}
	if ev.DocumentID == "" {
		return Signal{}, false, ErrNoDocumentID
	}
	return Signal{Room: rule.Target(ev.DocumentID), Event: rule.Event}, true, nil
}

// Handle processes one event for rule. Failures stay inside this event.
func (b *Bridge) Handle(rule Rule, ev core.ChangeEvent) (sent int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "feed").Str("collection", rule.Collection).Interface("panic", r).Msg("change event handler panicked")
			sent = 0
		}
	}()
	sig, ok, err := Translate(rule, ev)
	if err != nil {
		log.Error().Err(err).Str("module", "feed").Str("collection", rule.Collection).Msg("bad change event")
		return 0
	}
	if !ok {
		return 0
	}
	sent = b.Out.Room(sig.Room, "", core.MustEncode(sig.Event, nil))
	log.Debug().Str("module", "feed").Str("room", string(sig.Room)).Str("event", sig.Event).Int("sent_to", sent).Msg("change bridged")
	return sent
}

// Run subscribes every rule and blocks until ctx is done or a feed fails.
// A feed failure is returned; the process is expected to exit on it.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, rule := range b.Rules {
		g.Go(func() error {
			log.Info().Str("module", "feed").Str("collection", rule.Collection).Msg("watching collection")
			err := b.Feed.Watch(ctx, rule.Collection, func(ev core.ChangeEvent) {
				b.Handle(rule, ev)
			})
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = ErrFeedClosed
			}
			return fmt.Errorf("watch %s: %w", rule.Collection, err)
		})
	}
	return g.Wait()
}
