package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"go.mongodb.org/mongo-driver/mongo"
)

type Messages struct {
	coll *mongo.Collection
}

func NewMessages(db *mongo.Database, collection string) *Messages {
	return &Messages{coll: db.Collection(collection)}
}

type messageDoc struct {
	Sender  any       `bson:"sender"`
	Room    any       `bson:"room"`
	Content string    `bson:"content"`
	Date    time.Time `bson:"date"`
}

func (m *Messages) Persist(ctx context.Context, msg domain.Message) error {
	doc := messageDoc{
		Sender:  docID(string(msg.Sender)),
		Room:    docID(string(msg.Room)),
		Content: msg.Content,
		Date:    msg.SentAt.Time,
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message into %s: %w", msg.Room, err)
	}
	return nil
}
