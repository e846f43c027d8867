package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

const (
	topPathsLimit = 10
	liveMaxLimit  = 200
)

// IRequestLogService stores and reports on API request logs.
type IRequestLogService interface {
	Record(ctx context.Context, l *models.RequestLog) error
	List(ctx context.Context, f models.RequestLogFilter) ([]models.RequestLog, int64, error)
	Stats(ctx context.Context, since time.Time) (*models.RequestLogStats, error)
	Live(ctx context.Context, after time.Time, limit int) ([]models.RequestLog, error)
	Clear(ctx context.Context) (int64, error)
}

type requestLogService struct {
	db *mongo.Database
}

func NewRequestLogService(db *mongo.Database) IRequestLogService {
	return &requestLogService{db: db}
}

func (s *requestLogService) collection() *mongo.Collection {
	return s.db.Collection(db.CollRequestLogs)
}

func (s *requestLogService) Record(ctx context.Context, l *models.RequestLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	l.ID = utils.SixID{}
	if _, err := db.InsertOne(ctx, s.collection(), l); err != nil {
		return err
	}
	return nil
}

func (s *requestLogService) List(ctx context.Context, f models.RequestLogFilter) ([]models.RequestLog, int64, error) {
	filter := bson.M{}
	if f.Method != "" {
		filter["method"] = strings.ToUpper(f.Method)
	}
	if f.Status != 0 {
		filter["status"] = f.Status
	}
	if f.PathPrefix != "" {
		filter["path"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.PathPrefix)}
	}
	var out []models.RequestLog
	total, err := findPage(ctx, s.collection(), filter, bson.D{{Key: "created_at", Value: -1}}, f.PageRequest, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list request logs: %w", err)
	}
	return out, total, nil
}

// Stats summarises requests since the given time: status classes, mean
// latency and busiest paths.
func (s *requestLogService) Stats(ctx context.Context, since time.Time) (*models.RequestLogStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gte": since}}}},
		{{Key: "$facet", Value: bson.M{
			"totals": bson.A{
				bson.M{"$group": bson.M{"_id": nil, "count": bson.M{"$sum": 1}, "avg": bson.M{"$avg": "$latency_ms"}}},
			},
			"by_status": bson.A{
				bson.M{"$group": bson.M{
					"_id": bson.M{"$concat": bson.A{
						bson.M{"$toString": bson.M{"$toInt": bson.M{"$floor": bson.M{"$divide": bson.A{"$status", 100}}}}},
						"xx",
					}},
					"count": bson.M{"$sum": 1},
				}},
			},
			"top_paths": bson.A{
				bson.M{"$group": bson.M{"_id": "$path", "count": bson.M{"$sum": 1}}},
				bson.M{"$sort": bson.M{"count": -1}},
				bson.M{"$limit": topPathsLimit},
			},
		}}},
	}
	cur, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate request logs: %w", err)
	}
	var facets []struct {
		Totals []struct {
			Count int64   `bson:"count"`
			Avg   float64 `bson:"avg"`
		} `bson:"totals"`
		ByStatus []groupCount       `bson:"by_status"`
		TopPaths []models.PathCount `bson:"top_paths"`
	}
	if err := cur.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("failed to decode request log stats: %w", err)
	}

	stats := &models.RequestLogStats{
		ByStatus: map[string]int64{},
		TopPaths: []models.PathCount{},
		Since:    since,
	}
	if len(facets) == 0 {
		return stats, nil
	}
	f := facets[0]
	if len(f.Totals) > 0 {
		stats.Total = f.Totals[0].Count
		stats.AvgLatencyMs = math.Round(f.Totals[0].Avg*100) / 100
	}
	for _, g := range f.ByStatus {
		stats.ByStatus[g.Key] = g.Count
	}
	if f.TopPaths != nil {
		stats.TopPaths = f.TopPaths
	}
	return stats, nil
}

// Live returns requests logged after the given time, oldest first, so a
// polling dashboard can append them.
func (s *requestLogService) Live(ctx context.Context, after time.Time, limit int) ([]models.RequestLog, error) {
	if limit <= 0 || limit > liveMaxLimit {
		limit = liveMaxLimit
	}
	cur, err := s.collection().Find(ctx,
		bson.M{"created_at": bson.M{"$gt": after}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to tail request logs: %w", err)
	}
	out := []models.RequestLog{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode request logs: %w", err)
	}
	return out, nil
}

func (s *requestLogService) Clear(ctx context.Context) (int64, error) {
	res, err := s.collection().DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to clear request logs: %w", err)
	}
	return res.DeletedCount, nil
}
