package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

// IClientService manages clients and their denormalised counters.
type IClientService interface {
	Create(ctx context.Context, c *models.Client) (*models.Client, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Client, error)
	List(ctx context.Context, f models.ClientFilter) ([]models.Client, int64, error)
	Update(ctx context.Context, id utils.SixID, in *models.Client) (*models.Client, error)
	Delete(ctx context.Context, id utils.SixID) error
	AdjustCounters(ctx context.Context, id utils.SixID, delta models.ClientCounters) error
	Reconcile(ctx context.Context, id utils.SixID) (*models.Client, error)
	ListIDs(ctx context.Context) ([]utils.SixID, error)
}

type clientService struct {
	db     *mongo.Database
	logger *zap.Logger
}

func NewClientService(db *mongo.Database, logger *zap.Logger) IClientService {
	return &clientService{db: db, logger: logger}
}

func (s *clientService) collection() *mongo.Collection {
	return s.db.Collection(db.CollClients)
}

func (s *clientService) Create(ctx context.Context, c *models.Client) (*models.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, errs.Validation("client name is required")
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.ID = utils.SixID{}
	c.TotalQuotations, c.TotalInvoices, c.TotalRevenue = 0, 0, 0
	c.Deleted = false
	c.Timestamps = models.Timestamps{}
	c.Touch(time.Now().UTC())

	created, err := db.InsertOne(ctx, s.collection(), c)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Client created", zap.String("client_id", created.ID.String()))
	return created, nil
}

// FindByID returns a live client. Soft-deleted clients are not found.
func (s *clientService) FindByID(ctx context.Context, id utils.SixID) (*models.Client, error) {
	var c models.Client
	err := s.collection().FindOne(ctx, bson.M{"_id": id, "deleted": false}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("client")
		}
		return nil, fmt.Errorf("failed to find client %s: %w", id, err)
	}
	return &c, nil
}

func (s *clientService) List(ctx context.Context, f models.ClientFilter) ([]models.Client, int64, error) {
	filter := bson.M{"deleted": false}
	if q := strings.TrimSpace(f.Search); q != "" {
		rx := primitiveRegex(q)
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"email": rx},
			bson.M{"company": rx},
			bson.M{"phone": rx},
		}
	}
	var out []models.Client
	total, err := findPage(ctx, s.collection(), filter, bson.D{{Key: "name", Value: 1}}, f.PageRequest, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	return out, total, nil
}

// Update overwrites the contact fields. Counters are never taken from input.
func (s *clientService) Update(ctx context.Context, id utils.SixID, in *models.Client) (*models.Client, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.Validation("client name is required")
	}
	set := bson.M{
		"name":       name,
		"email":      strings.ToLower(strings.TrimSpace(in.Email)),
		"phone":      in.Phone,
		"company":    in.Company,
		"address":    in.Address,
		"gstin":      in.GSTIN,
		"notes":      in.Notes,
		"updated_at": time.Now().UTC(),
	}
	var c models.Client
	err := s.collection().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "deleted": false},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("client")
		}
		return nil, fmt.Errorf("failed to update client %s: %w", id, err)
	}
	return &c, nil
}

// Delete hides the client. Quotations and invoices keep pointing at it.
func (s *clientService) Delete(ctx context.Context, id utils.SixID) error {
	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to delete client %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("client")
	}
	s.logger.Info("Client deleted", zap.String("client_id", id.String()))
	return nil
}

// AdjustCounters applies delta in a single $inc so concurrent adjustments never lose updates.
func (s *clientService) AdjustCounters(ctx context.Context, id utils.SixID, delta models.ClientCounters) error {
	if delta.IsZero() {
		return nil
	}
	inc := bson.M{}
	if delta.Quotations != 0 {
		inc["total_quotations"] = delta.Quotations
	}
	if delta.Invoices != 0 {
		inc["total_invoices"] = delta.Invoices
	}
	if delta.Revenue != 0 {
		inc["total_revenue"] = delta.Revenue
	}
	res, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": inc,
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to adjust counters of client %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("client")
	}
	return nil
}

// Reconcile recomputes the counters of one client from the source collections.
func (s *clientService) Reconcile(ctx context.Context, id utils.SixID) (*models.Client, error) {
	quotations, err := s.db.Collection(db.CollQuotations).CountDocuments(ctx, bson.M{"client_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to count quotations: %w", err)
	}
	invoices, err := s.db.Collection(db.CollInvoices).CountDocuments(ctx, bson.M{"client_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}
	cur, err := s.db.Collection(db.CollPayments).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"client_id": id}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	var sums []struct {
		Total float64 `bson:"total"`
	}
	if err := cur.All(ctx, &sums); err != nil {
		return nil, fmt.Errorf("failed to decode payment sum: %w", err)
	}
	revenue := 0.0
	if len(sums) > 0 {
		revenue = sums[0].Total
	}

	var c models.Client
	err = s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"total_quotations": quotations,
		"total_invoices":   invoices,
		"total_revenue":    revenue,
		"updated_at":       time.Now().UTC(),
	}}, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("client")
		}
		return nil, fmt.Errorf("failed to store reconciled counters: %w", err)
	}
	return &c, nil
}

// ListIDs returns the ids of every live client.
func (s *clientService) ListIDs(ctx context.Context) ([]utils.SixID, error) {
	cur, err := s.collection().Find(ctx, bson.M{"deleted": false}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list client ids: %w", err)
	}
	var rows []models.Base
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode client ids: %w", err)
	}
	ids := make([]utils.SixID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// primitiveRegex matches s literally and case-insensitively.
func primitiveRegex(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

// findPage runs a count and a paged find with the same filter.
func findPage(ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, page models.PageRequest, out interface{}) (int64, error) {
	page = page.Normalize()
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	opts := options.Find().
		SetSort(sort).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	if err := cur.All(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}
