package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/imaging"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/storage"
)

// SettingsUpdateChannel carries a signal whenever the settings document changes.
const SettingsUpdateChannel = "settings_updates"

// ISettingsService serves the tenant settings from memory. The snapshot is
// loaded at startup and refreshed when another process publishes a change.
type ISettingsService interface {
	Get() models.Settings
	Reload(ctx context.Context) error
	Update(ctx context.Context, in *models.Settings) (*models.Settings, error)
	UploadLogo(ctx context.Context, data []byte) (*models.Settings, error)
	LogoURL(ctx context.Context) (string, error)
	SubscribeToChanges(ctx context.Context) error
}

type settingsService struct {
	db      *mongo.Database
	cfg     *config.Config
	rdb     *redis.Client
	storage storage.IS3Storage
	logger  *zap.Logger

	mutex    sync.RWMutex
	settings models.Settings
}

// NewSettingsService loads the settings document, writing the defaults first
// when the database has none. rdb and store may be nil.
func NewSettingsService(ctx context.Context, database *mongo.Database, cfg *config.Config, rdb *redis.Client, store storage.IS3Storage, logger *zap.Logger) (ISettingsService, error) {
	s := &settingsService{
		db:      database,
		cfg:     cfg,
		rdb:     rdb,
		storage: store,
		logger:  logger,
	}
	defaults := models.DefaultSettings()
	defaults.Company.Name = cfg.AppName
	defaults.UpdatedAt = time.Now().UTC()
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": models.SettingsID},
		bson.M{"$setOnInsert": defaults},
		options.Update().SetUpsert(true))
	if err != nil && !db.IsMongoDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *settingsService) collection() *mongo.Collection {
	return s.db.Collection(db.CollSettings)
}

// Get returns a copy of the current snapshot.
func (s *settingsService) Get() models.Settings {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.settings
}

func (s *settingsService) Reload(ctx context.Context) error {
	var st models.Settings
	if err := s.collection().FindOne(ctx, bson.M{"_id": models.SettingsID}).Decode(&st); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	s.mutex.Lock()
	s.settings = st
	s.mutex.Unlock()
	s.logger.Debug("Settings loaded", zap.Time("updated_at", st.UpdatedAt))
	return nil
}

// Update replaces the editable settings. The logo key is kept; it only changes through UploadLogo.
func (s *settingsService) Update(ctx context.Context, in *models.Settings) (*models.Settings, error) {
	if in.Numbering.Digits < 1 || in.Numbering.Digits > 10 {
		return nil, errs.Validation("numbering digits must be between 1 and 10")
	}
	if in.DefaultGSTRate < 0 || in.DefaultGSTRate > 100 {
		return nil, errs.Validation("default GST rate must be between 0 and 100")
	}
	if in.Company.Name == "" {
		return nil, errs.Validation("company name is required")
	}
	current := s.Get()
	next := *in
	next.ID = models.SettingsID
	next.Company.LogoKey = current.Company.LogoKey
	next.UpdatedAt = time.Now().UTC()
	return s.replace(ctx, next)
}

func (s *settingsService) UploadLogo(ctx context.Context, data []byte) (*models.Settings, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("logo upload: object storage not configured: %w", errs.ErrUnavailable)
	}
	img, err := imaging.NormalizeLogo(data, s.cfg.LogoMaxDimension, int64(s.cfg.LogoMaxSizeMB)<<20)
	if err != nil {
		if errors.Is(err, imaging.ErrTooLarge) || errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return nil, err
	}
	key := storage.LogoKey("png")
	if err := s.storage.PutObject(ctx, key, "image/png", img); err != nil {
		return nil, err
	}

	next := s.Get()
	previous := next.Company.LogoKey
	next.Company.LogoKey = key
	next.UpdatedAt = time.Now().UTC()
	updated, err := s.replace(ctx, next)
	if err != nil {
		return nil, err
	}
	if previous != "" {
		if err := s.storage.DeleteObject(ctx, previous); err != nil {
			s.logger.Warn("Failed to delete previous logo", zap.String("key", previous), zap.Error(err))
		}
	}
	return updated, nil
}

// LogoURL is a short-lived download link for the logo, "" when none is set.
func (s *settingsService) LogoURL(ctx context.Context) (string, error) {
	key := s.Get().Company.LogoKey
	if key == "" || s.storage == nil {
		return "", nil
	}
	return s.storage.PresignGetURL(ctx, key, storage.PresignTTL)
}

func (s *settingsService) replace(ctx context.Context, next models.Settings) (*models.Settings, error) {
	if _, err := s.collection().ReplaceOne(ctx, bson.M{"_id": models.SettingsID}, next, options.Replace().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	s.mutex.Lock()
	s.settings = next
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, SettingsUpdateChannel, next.UpdatedAt.Format(time.RFC3339Nano)).Err(); err != nil {
			s.logger.Warn("Failed to publish settings update", zap.Error(err))
		}
	}
	s.logger.Info("Settings updated")
	return &next, nil
}

// SubscribeToChanges reloads the snapshot on every message until ctx is done.
func (s *settingsService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		s.logger.Info("Redis client not configured, settings will not follow remote updates")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, SettingsUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SettingsUpdateChannel, err)
	}
	ch := pubsub.Channel()
	s.logger.Info("Subscribed to settings updates", zap.String("channel", SettingsUpdateChannel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.logger.Debug("Settings update received", zap.String("payload", msg.Payload))
			if err := s.Reload(ctx); err != nil {
				s.logger.Error("Failed to reload settings after notification", zap.Error(err))
			}
		}
	}
}
