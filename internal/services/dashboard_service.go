package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"buildex/backoffice/internal/cache"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/models"
)

const (
	dashboardCacheKey = "stats"
	topClientsLimit   = 5
	recentLimit       = 5
)

// IDashboardService builds the dashboard report.
type IDashboardService interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
	Invalidate(ctx context.Context)
}

type dashboardService struct {
	db     *mongo.Database
	cache  *cache.JSONCache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardService caches the report for ttl. jc may be nil.
func NewDashboardService(db *mongo.Database, jc *cache.JSONCache, ttl time.Duration, logger *zap.Logger) IDashboardService {
	return &dashboardService{
		db:     db,
		cache:  jc,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *dashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("Failed to invalidate dashboard cache", zap.Error(err))
	}
}

// Stats runs the independent aggregations concurrently. Each goroutine fills
// its own section of the report.
func (s *dashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	var cached models.DashboardStats
	if ok, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err != nil {
		s.logger.Warn("Dashboard cache read failed", zap.Error(err))
	} else if ok {
		return &cached, nil
	}

	stats := &models.DashboardStats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.quotationStats(gctx, stats) })
	g.Go(func() error { return s.clientStatusStats(gctx, stats) })
	g.Go(func() error { return s.invoiceStats(gctx, stats) })
	g.Go(func() error { return s.revenueStats(gctx, stats) })
	g.Go(func() error { return s.clientStats(gctx, stats) })
	g.Go(func() error { return s.recentQuotations(gctx, stats) })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build dashboard: %w", err)
	}

	if err := s.cache.Set(ctx, dashboardCacheKey, stats, s.ttl); err != nil {
		s.logger.Warn("Dashboard cache write failed", zap.Error(err))
	}
	return stats, nil
}

func aggregate(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, out interface{}) error {
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", coll.Name(), err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s aggregation: %w", coll.Name(), err)
	}
	return nil
}

func (s *dashboardService) quotationStats(ctx context.Context, stats *models.DashboardStats) error {
	var rows []struct {
		Status models.QuotationStatus `bson:"_id"`
		Count  int64                  `bson:"count"`
		Value  float64                `bson:"value"`
	}
	err := aggregate(ctx, s.db.Collection(db.CollQuotations), mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
			"value": bson.M{"$sum": "$summary.grand_total"},
		}}},
	}, &rows)
	if err != nil {
		return err
	}
	q := &stats.Quotations
	q.ByStatus = map[models.QuotationStatus]int64{}
	for _, r := range rows {
		q.ByStatus[r.Status] = r.Count
		q.Total += r.Count
		if r.Status == models.QuotationSent {
			q.PipelineValue = r.Value
		}
	}
	return nil
}

func (s *dashboardService) clientStatusStats(ctx context.Context, stats *models.DashboardStats) error {
	var rows []groupCount
	err := aggregate(ctx, s.db.Collection(db.CollQuotations), mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$client_status", "count": bson.M{"$sum": 1}}}},
	}, &rows)
	if err != nil {
		return err
	}
	stats.Quotations.ByClientStatus = map[models.ClientStatus]int64{}
	for _, r := range rows {
		stats.Quotations.ByClientStatus[models.ClientStatus(r.Key)] = r.Count
	}
	return nil
}

func (s *dashboardService) invoiceStats(ctx context.Context, stats *models.DashboardStats) error {
	var rows []struct {
		Status  models.PaymentStatus `bson:"_id"`
		Count   int64                `bson:"count"`
		Billed  float64              `bson:"billed"`
		Balance float64              `bson:"balance"`
	}
	err := aggregate(ctx, s.db.Collection(db.CollInvoices), mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":     "$payment_status",
			"count":   bson.M{"$sum": 1},
			"billed":  bson.M{"$sum": "$summary.grand_total"},
			"balance": bson.M{"$sum": "$balance_amount"},
		}}},
	}, &rows)
	if err != nil {
		return err
	}
	inv := &stats.Invoices
	inv.ByPaymentStatus = map[models.PaymentStatus]int64{}
	for _, r := range rows {
		inv.ByPaymentStatus[r.Status] = r.Count
		inv.Total += r.Count
		if r.Status == models.PaymentCancelled {
			continue
		}
		inv.TotalBilled += r.Billed
		inv.OutstandingTotal += r.Balance
	}
	return nil
}

func (s *dashboardService) revenueStats(ctx context.Context, stats *models.DashboardStats) error {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var rows []struct {
		AllTime   float64 `bson:"all_time"`
		ThisMonth float64 `bson:"this_month"`
	}
	err := aggregate(ctx, s.db.Collection(db.CollPayments), mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"all_time": bson.M{"$sum": "$amount"},
			"this_month": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$gte": bson.A{"$paid_on", monthStart}}, "$amount", 0},
			}},
		}}},
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		stats.Revenue.AllTime = rows[0].AllTime
		stats.Revenue.ThisMonth = rows[0].ThisMonth
	}
	return nil
}

func (s *dashboardService) clientStats(ctx context.Context, stats *models.DashboardStats) error {
	coll := s.db.Collection(db.CollClients)
	total, err := coll.CountDocuments(ctx, bson.M{"deleted": false})
	if err != nil {
		return fmt.Errorf("count clients: %w", err)
	}
	cur, err := coll.Find(ctx, bson.M{"deleted": false, "total_revenue": bson.M{"$gt": 0}}, options.Find().
		SetSort(bson.D{{Key: "total_revenue", Value: -1}}).
		SetLimit(topClientsLimit).
		SetProjection(bson.M{"name": 1, "total_revenue": 1}))
	if err != nil {
		return fmt.Errorf("find top clients: %w", err)
	}
	top := []models.ClientRevenue{}
	if err := cur.All(ctx, &top); err != nil {
		return fmt.Errorf("decode top clients: %w", err)
	}
	stats.Clients.Total = total
	stats.Clients.Top = top
	return nil
}

func (s *dashboardService) recentQuotations(ctx context.Context, stats *models.DashboardStats) error {
	recent := []models.QuotationSummary{}
	err := aggregate(ctx, s.db.Collection(db.CollQuotations), mongo.Pipeline{
		{{Key: "$sort", Value: bson.M{"created_at": -1}}},
		{{Key: "$limit", Value: recentLimit}},
		{{Key: "$project", Value: bson.M{
			"quotation_number": 1,
			"status":           1,
			"client_status":    1,
			"grand_total":      "$summary.grand_total",
		}}},
	}, &recent)
	if err != nil {
		return err
	}
	stats.RecentQuotations = recent
	return nil
}
