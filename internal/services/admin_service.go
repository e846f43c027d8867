package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"buildex/backoffice/internal/auth"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

const minPasswordLength = 8

var validate = validator.New()

// IAdminService manages back-office accounts.
type IAdminService interface {
	Register(ctx context.Context, name, email, password string) (*models.Admin, error)
	Authenticate(ctx context.Context, email, password string) (*models.Admin, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Admin, error)
	SetActive(ctx context.Context, id utils.SixID, active bool) error
}

type adminService struct {
	db     *mongo.Database
	logger *zap.Logger
}

func NewAdminService(db *mongo.Database, logger *zap.Logger) IAdminService {
	return &adminService{db: db, logger: logger}
}

func (s *adminService) collection() *mongo.Collection {
	return s.db.Collection(db.CollAdmins)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active account. The very first account becomes the owner.
func (s *adminService) Register(ctx context.Context, name, email, password string) (*models.Admin, error) {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, errs.Validation("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, errs.Validation("password must be at least %d characters", minPasswordLength)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Validation("name is required")
	}

	existing, err := s.collection().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}
	role := models.RoleStaff
	if existing == 0 {
		role = models.RoleOwner
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &models.Admin{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	a.Touch(time.Now().UTC())

	if _, err := db.InsertOne(ctx, s.collection(), a); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("email already registered: %w", errs.ErrConflict)
		}
		return nil, err
	}
	s.logger.Info("Admin registered", zap.String("admin_id", a.ID.String()), zap.String("role", string(role)))
	return a, nil
}

// Authenticate checks credentials. Unknown email, wrong password and inactive
// accounts all fail with ErrUnauthorized.
func (s *adminService) Authenticate(ctx context.Context, email, password string) (*models.Admin, error) {
	var a models.Admin
	err := s.collection().FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if !auth.CheckPasswordHash(password, a.PasswordHash) {
		return nil, fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized)
	}
	if !a.Active {
		return nil, fmt.Errorf("account is inactive: %w", errs.ErrUnauthorized)
	}

	now := time.Now().UTC()
	if _, err := s.collection().UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{"$set": bson.M{"last_login_at": now}}); err != nil {
		s.logger.Warn("Failed to record login time", zap.String("admin_id", a.ID.String()), zap.Error(err))
	} else {
		a.LastLoginAt = &now
	}
	return &a, nil
}

func (s *adminService) FindByID(ctx context.Context, id utils.SixID) (*models.Admin, error) {
	var a models.Admin
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("admin")
		}
		return nil, fmt.Errorf("failed to find admin %s: %w", id, err)
	}
	return &a, nil
}

func (s *adminService) SetActive(ctx context.Context, id utils.SixID, active bool) error {
	res, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"active":     active,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to update admin %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("admin")
	}
	return nil
}
