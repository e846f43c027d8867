package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/lifecycle"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

// ITemplateService manages reusable quotation item templates.
type ITemplateService interface {
	Create(ctx context.Context, t *models.QuotationTemplate) (*models.QuotationTemplate, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.QuotationTemplate, error)
	List(ctx context.Context, projectType string) ([]models.QuotationTemplate, error)
	Update(ctx context.Context, id utils.SixID, in *models.QuotationTemplate) (*models.QuotationTemplate, error)
	Delete(ctx context.Context, id utils.SixID) error
}

type templateService struct {
	db *mongo.Database
}

func NewTemplateService(db *mongo.Database) ITemplateService {
	return &templateService{db: db}
}

func (s *templateService) collection() *mongo.Collection {
	return s.db.Collection(db.CollQuotationTemplates)
}

func validateTemplate(t *models.QuotationTemplate) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errs.Validation("template name is required")
	}
	if len(t.Items) == 0 {
		return errs.Validation("a template needs at least one item")
	}
	if t.GSTRate != nil && (*t.GSTRate < 0 || *t.GSTRate > 100) {
		return errs.Validation("GST rate must be between 0 and 100")
	}
	if err := lifecycle.ValidateItems(t.Items); err != nil {
		return err
	}
	t.Items = lifecycle.PriceItems(t.Items)
	return nil
}

func (s *templateService) Create(ctx context.Context, t *models.QuotationTemplate) (*models.QuotationTemplate, error) {
	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	t.ID = utils.SixID{}
	t.Timestamps = models.Timestamps{}
	t.Touch(time.Now().UTC())
	return db.InsertOne(ctx, s.collection(), t)
}

func (s *templateService) FindByID(ctx context.Context, id utils.SixID) (*models.QuotationTemplate, error) {
	var t models.QuotationTemplate
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("template")
		}
		return nil, fmt.Errorf("failed to find template %s: %w", id, err)
	}
	return &t, nil
}

func (s *templateService) List(ctx context.Context, projectType string) ([]models.QuotationTemplate, error) {
	filter := bson.M{}
	if projectType != "" {
		filter["project_type"] = projectType
	}
	cur, err := s.collection().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	var out []models.QuotationTemplate
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	return out, nil
}

func (s *templateService) Update(ctx context.Context, id utils.SixID, in *models.QuotationTemplate) (*models.QuotationTemplate, error) {
	if err := validateTemplate(in); err != nil {
		return nil, err
	}
	set := bson.M{
		"name":         in.Name,
		"project_type": in.ProjectType,
		"items":        in.Items,
		"updated_at":   time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if in.GSTRate != nil {
		set["gst_rate"] = *in.GSTRate
	} else {
		update["$unset"] = bson.M{"gst_rate": ""}
	}
	var t models.QuotationTemplate
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("template")
		}
		return nil, fmt.Errorf("failed to update template %s: %w", id, err)
	}
	return &t, nil
}

func (s *templateService) Delete(ctx context.Context, id utils.SixID) error {
	res, err := s.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return errs.NotFound("template")
	}
	return nil
}
