package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Users struct {
	coll *mongo.Collection
}

func NewUsers(db *mongo.Database, collection string) *Users {
	return &Users{coll: db.Collection(collection)}
}

type userRooms struct {
	Rooms []bson.RawValue `bson:"rooms"`
}

func (u *Users) GetRoomMemberships(ctx context.Context, user domain.UserID) ([]domain.RoomID, error) {
	var doc userRooms
	err := u.coll.FindOne(ctx,
		bson.M{"_id": docID(string(user))},
		options.FindOne().SetProjection(bson.M{"rooms": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownUser, user)
	}
	if err != nil {
		return nil, fmt.Errorf("find rooms of %s: %w", user, err)
	}
	rooms := make([]domain.RoomID, 0, len(doc.Rooms))
	for _, v := range doc.Rooms {
		id, ok := idString(v)
		if !ok {
			continue
		}
		rooms = append(rooms, domain.RoomID(id))
	}
	return rooms, nil
}

func (u *Users) SetOnlineFlag(ctx context.Context, user domain.UserID, online bool) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": docID(string(user))},
		bson.M{"$set": bson.M{"online": online}},
	)
	if err != nil {
		return fmt.Errorf("set online flag of %s: %w", user, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownUser, user)
	}
	return nil
}

func idString(v bson.RawValue) (string, bool) {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex(), true
	}
	if s, ok := v.StringValueOK(); ok && s != "" {
		return s, true
	}
	return "", false
}
