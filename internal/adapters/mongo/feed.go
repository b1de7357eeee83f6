package mongo

import (
	"context"
	"fmt"

	"github.com/dkeye/Relay/internal/core"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Feed watches collection change streams. The pipeline only lets through
// events that carry updated fields.
type Feed struct {
	db *mongo.Database
}

func NewFeed(db *mongo.Database) *Feed {
	return &Feed{db: db}
}

var updatesOnly = mongo.Pipeline{
	{{Key: "$match", Value: bson.D{
		{Key: "updateDescription.updatedFields", Value: bson.D{{Key: "$exists", Value: true}}},
	}}},
}

type changeDoc struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID bson.RawValue `bson:"_id"`
	} `bson:"documentKey"`
	UpdateDescription struct {
		UpdatedFields bson.Raw `bson:"updatedFields"`
	} `bson:"updateDescription"`
}

func (f *Feed) Watch(ctx context.Context, collection string, fn func(core.ChangeEvent)) error {
	cs, err := f.db.Collection(collection).Watch(ctx, updatesOnly)
	if err != nil {
		return fmt.Errorf("open change stream on %s: %w", collection, err)
	}
	defer cs.Close(context.WithoutCancel(ctx))

	for cs.Next(ctx) {
		ev, err := decodeChange(cs.Current)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.mongo").Str("collection", collection).Msg("undecodable change event")
			continue
		}
		fn(ev)
	}
	if ctx.Err() != nil {
		return nil
	}
	return cs.Err()
}

func decodeChange(raw bson.Raw) (core.ChangeEvent, error) {
	var doc changeDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return core.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	ev := core.ChangeEvent{OperationType: doc.OperationType}
	if id, ok := idString(doc.DocumentKey.ID); ok {
		ev.DocumentID = id
	}
	if len(doc.UpdateDescription.UpdatedFields) > 0 {
		elems, err := doc.UpdateDescription.UpdatedFields.Elements()
		if err != nil {
			return core.ChangeEvent{}, fmt.Errorf("decode updated fields: %w", err)
		}
		for _, e := range elems {
			ev.UpdatedFields = append(ev.UpdatedFields, e.Key())
		}
	}
	return ev, nil
}
