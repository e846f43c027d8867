package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

type INotificationService interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	List(ctx context.Context, unreadOnly bool, page models.PageRequest) ([]models.Notification, int64, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id utils.SixID) error
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id utils.SixID) error
}

type notificationService struct {
	db     *mongo.Database
	logger *zap.Logger
}

func NewNotificationService(db *mongo.Database, logger *zap.Logger) INotificationService {
	return &notificationService{db: db, logger: logger}
}

func (s *notificationService) collection() *mongo.Collection {
	return s.db.Collection(db.CollNotifications)
}

func (s *notificationService) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.Title == "" {
		return nil, errs.Validation("notification title is required")
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	n.ID = utils.SixID{}
	n.Read = false
	n.CreatedAt = time.Now().UTC()
	created, err := db.InsertOne(ctx, s.collection(), n)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Notification created", zap.String("type", string(n.Type)), zap.String("title", n.Title))
	return created, nil
}

func (s *notificationService) List(ctx context.Context, unreadOnly bool, page models.PageRequest) ([]models.Notification, int64, error) {
	filter := bson.M{}
	if unreadOnly {
		filter["read"] = false
	}
	var out []models.Notification
	total, err := findPage(ctx, s.collection(), filter, bson.D{{Key: "created_at", Value: -1}}, page, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, total, nil
}

func (s *notificationService) UnreadCount(ctx context.Context) (int64, error) {
	n, err := s.collection().CountDocuments(ctx, bson.M{"read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id utils.SixID) error {
	res, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("notification")
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := s.collection().UpdateMany(ctx, bson.M{"read": false}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *notificationService) Delete(ctx context.Context, id utils.SixID) error {
	res, err := s.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return errs.NotFound("notification")
		}
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return errs.NotFound("notification")
	}
	return nil
}
