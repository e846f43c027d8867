package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureIndexes creates every secondary index the services rely on. It is
// idempotent and runs at startup.
func EnsureIndexes(ctx context.Context, database *mongo.Database, requestLogTTL time.Duration, logger *zap.Logger) error {
	specs := map[string][]mongo.IndexModel{
		CollQuotations: {
			{Keys: bson.D{{Key: "quotation_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "access_token", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "client_status", Value: 1}}},
			{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "client_feedback.responded_at", Value: -1}}, Options: options.Index().SetSparse(true)},
		},
		CollInvoices: {
			{Keys: bson.D{{Key: "invoice_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "quotation_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		CollPayments: {
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
			{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "paid_on", Value: -1}}},
		},
		CollNotifications: {
			{Keys: bson.D{{Key: "read", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CollClients: {
			{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "name", Value: 1}}},
		},
		CollAdmins: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollRequestLogs: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(requestLogTTL.Seconds()))},
			{Keys: bson.D{{Key: "path", Value: 1}}},
		},
	}

	for coll, models := range specs {
		names, err := database.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
		logger.Debug("indexes ensured", zap.String("collection", coll), zap.Strings("indexes", names))
	}
	return nil
}
