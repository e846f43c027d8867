package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Identifiable is satisfied by documents embedding models.Base.
type Identifiable interface {
	GenIDIfEmpty()
	GenID()
}

// InsertOne inserts doc, generating a fresh id when it has none and again
// whenever the random id collides with an existing one.
func InsertOne[T Identifiable](ctx context.Context, coll *mongo.Collection, doc T) (T, error) {
	doc.GenIDIfEmpty()
	first := true
	err := WithRetries(func() error {
		if !first {
			doc.GenID()
		}
		first = false
		_, err := coll.InsertOne(ctx, doc)
		return err
	}, DefaultMaxRetries, IsIDCollision)
	if err != nil {
		return doc, fmt.Errorf("failed to insert into %s: %w", coll.Name(), err)
	}
	return doc, nil
}
