package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/models"
)

// ICounterService hands out gap-tolerant, never-repeating sequence numbers.
type ICounterService interface {
	Next(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
}

type counterService struct {
	db *mongo.Database
}

func NewCounterService(db *mongo.Database) ICounterService {
	return &counterService{db: db}
}

// Next atomically increments the named counter, creating it on first use.
func (s *counterService) Next(ctx context.Context, name string) (int64, error) {
	coll := s.db.Collection(db.CollCounters)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var c models.Counter
	// Two concurrent upserts of a missing counter can race on _id; the loser retries as a plain $inc.
	err := db.Try(func() error {
		return coll.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&c)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}
	return c.Seq, nil
}

// Current returns the last issued value, 0 if none.
func (s *counterService) Current(ctx context.Context, name string) (int64, error) {
	var c models.Counter
	err := s.db.Collection(db.CollCounters).FindOne(ctx, bson.M{"_id": name}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	return c.Seq, nil
}
