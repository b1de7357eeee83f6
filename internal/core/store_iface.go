package core

import (
	"context"
	"errors"

	"github.com/dkeye/Relay/internal/domain"
)

var ErrUnknownUser = errors.New("unknown user")

// UsersStore is the persisted side of users. It is not authoritative for
// whether a transport connection exists.
type UsersStore interface {
	GetRoomMemberships(ctx context.Context, user domain.UserID) ([]domain.RoomID, error)
	SetOnlineFlag(ctx context.Context, user domain.UserID, online bool) error
}

// MessageStore persists chat messages. Called off the broadcast path.
type MessageStore interface {
	Persist(ctx context.Context, msg domain.Message) error
}

// ChangeEvent describes one document mutation from a change feed.
type ChangeEvent struct {
	OperationType string
	DocumentID    string
	UpdatedFields []string
}

const OperationUpdate = "update"

//go:generate mockgen -source=store_iface.go -destination=mocks/store_mock.go -package=mocks

// ChangeFeed delivers update events of a collection to fn until ctx is done
// or the feed fails. Only events carrying an update description are delivered.
type ChangeFeed interface {
	Watch(ctx context.Context, collection string, fn func(ChangeEvent)) error
}
