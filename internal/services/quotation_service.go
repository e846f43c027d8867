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
	"go.uber.org/zap"

	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/lifecycle"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/observability"
	"buildex/backoffice/internal/utils"
)

// IQuotationService owns the quotation lifecycle: pricing, numbering, status
// changes, share links and client feedback.
type IQuotationService interface {
	Create(ctx context.Context, in *models.QuotationInput) (*models.Quotation, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Quotation, error)
	List(ctx context.Context, f models.QuotationFilter) ([]models.Quotation, int64, error)
	Update(ctx context.Context, id utils.SixID, in *models.QuotationInput) (*models.Quotation, error)
	Delete(ctx context.Context, id utils.SixID) error
	Duplicate(ctx context.Context, id utils.SixID) (*models.Quotation, error)
	UpdateStatus(ctx context.Context, id utils.SixID, to models.QuotationStatus, ip string) (*models.Quotation, error)

	IssueShareLink(ctx context.Context, id utils.SixID, notify bool) (*models.ShareLink, error)
	FindByToken(ctx context.Context, token string) (*models.Quotation, error)
	MarkViewed(ctx context.Context, id utils.SixID, ip string) error
	RespondByToken(ctx context.Context, token string, resp *models.ClientResponse) (*models.Quotation, error)
	SubmitAdminFeedback(ctx context.Context, id utils.SixID, resp *models.ClientResponse) (*models.Quotation, error)
	GetFeedback(ctx context.Context, id utils.SixID) (*models.FeedbackView, error)
	ListWithFeedback(ctx context.Context, page models.PageRequest) ([]models.Quotation, int64, error)
	FeedbackStatistics(ctx context.Context) (*models.FeedbackStats, error)

	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	LinkInvoice(ctx context.Context, id, invoiceID utils.SixID) error
	UnlinkInvoice(ctx context.Context, id utils.SixID) error
}

const (
	feedbackSourceClient = "client"
	feedbackSourceAdmin  = "admin"
)

type quotationService struct {
	db            *mongo.Database
	cfg           *config.Config
	logger        *zap.Logger
	clients       IClientService
	counters      ICounterService
	settings      ISettingsService
	templates     ITemplateService
	notifications INotificationService
	queue         jobs.Enqueuer
	metrics       *observability.Metrics
	now           func() time.Time
}

// QuotationDeps groups the collaborators of the quotation service. Queue and
// Metrics may be nil.
type QuotationDeps struct {
	Clients       IClientService
	Counters      ICounterService
	Settings      ISettingsService
	Templates     ITemplateService
	Notifications INotificationService
	Queue         jobs.Enqueuer
	Metrics       *observability.Metrics
}

func NewQuotationService(db *mongo.Database, cfg *config.Config, logger *zap.Logger, deps QuotationDeps) IQuotationService {
	return &quotationService{
		db:            db,
		cfg:           cfg,
		logger:        logger,
		clients:       deps.Clients,
		counters:      deps.Counters,
		settings:      deps.Settings,
		templates:     deps.Templates,
		notifications: deps.Notifications,
		queue:         deps.Queue,
		metrics:       deps.Metrics,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *quotationService) collection() *mongo.Collection {
	return s.db.Collection(db.CollQuotations)
}

func activity(action string, at time.Time, details, ip string) models.ActivityEntry {
	return models.ActivityEntry{Action: action, At: at, Details: details, IP: ip}
}

func (s *quotationService) Create(ctx context.Context, in *models.QuotationInput) (*models.Quotation, error) {
	settings := s.settings.Get()
	if _, err := s.clients.FindByID(ctx, in.ClientID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Validation("client %s does not exist", in.ClientID)
		}
		return nil, err
	}

	items := in.Items
	gstRate := settings.DefaultGSTRate
	if in.TemplateID != nil {
		tpl, err := s.templates.FindByID(ctx, *in.TemplateID)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			items = tpl.Items
		}
		if tpl.GSTRate != nil {
			gstRate = *tpl.GSTRate
		}
	}
	if in.GSTRate != nil {
		gstRate = *in.GSTRate
	}
	if len(items) == 0 {
		return nil, errs.Validation("a quotation needs at least one item")
	}
	priced, summary, err := lifecycle.Price(items, gstRate, in.Discount, in.LabourCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	validTill := in.ValidTill
	if validTill == nil && settings.QuotationValidDays > 0 {
		v := now.AddDate(0, 0, settings.QuotationValidDays)
		validTill = &v
	}
	terms := in.Terms
	if terms == "" {
		terms = settings.Terms
	}

	q := &models.Quotation{
		ClientID:     in.ClientID,
		Project:      in.Project,
		Items:        priced,
		Summary:      summary,
		Status:       models.QuotationDraft,
		ClientStatus: models.ClientPending,
		ActivityLog:  []models.ActivityEntry{activity("created", now, "", "")},
		ValidTill:    validTill,
		TemplateID:   in.TemplateID,
		Notes:        in.Notes,
		Terms:        terms,
	}
	q.Touch(now)

	// A unique index backs quotation_number; on collision draw the next number.
	err = db.Try(func() error {
		seq, err := s.counters.Next(ctx, models.CounterQuotation)
		if err != nil {
			return err
		}
		q.QuotationNumber = lifecycle.QuotationNumber(settings.Numbering, seq, now)
		_, err = db.InsertOne(ctx, s.collection(), q)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.clients.AdjustCounters(ctx, q.ClientID, models.ClientCounters{Quotations: 1}); err != nil {
		s.logger.Warn("Failed to bump client quotation counter", zap.String("client_id", q.ClientID.String()), zap.Error(err))
	}
	s.logger.Info("Quotation created",
		zap.String("quotation_id", q.ID.String()),
		zap.String("number", q.QuotationNumber),
		zap.Float64("grand_total", q.Summary.GrandTotal))
	return q, nil
}

func (s *quotationService) FindByID(ctx context.Context, id utils.SixID) (*models.Quotation, error) {
	var q models.Quotation
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&q); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("quotation")
		}
		return nil, fmt.Errorf("failed to find quotation %s: %w", id, err)
	}
	return &q, nil
}

func (s *quotationService) List(ctx context.Context, f models.QuotationFilter) ([]models.Quotation, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.ClientStatus != "" {
		filter["client_status"] = f.ClientStatus
	}
	if f.ClientID != nil {
		filter["client_id"] = *f.ClientID
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		rx := primitiveRegex(q)
		filter["$or"] = bson.A{
			bson.M{"quotation_number": rx},
			bson.M{"project.type": rx},
			bson.M{"project.location": rx},
		}
	}
	if created := dateRange(f.From, f.To); created != nil {
		filter["created_at"] = created
	}
	var out []models.Quotation
	total, err := findPage(ctx, s.collection(), filter, bson.D{{Key: "created_at", Value: -1}}, f.PageRequest, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quotations: %w", err)
	}
	return out, total, nil
}

func dateRange(from, to *time.Time) bson.M {
	if from == nil && to == nil {
		return nil
	}
	r := bson.M{}
	if from != nil {
		r["$gte"] = *from
	}
	if to != nil {
		r["$lte"] = *to
	}
	return r
}

// Update reprices an editable quotation. A quotation the client asked to
// change goes back to pending so the next view and response start afresh.
func (s *quotationService) Update(ctx context.Context, id utils.SixID, in *models.QuotationInput) (*models.Quotation, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Editable(current.Status) {
		return nil, fmt.Errorf("quotation %s is %s and can no longer be edited: %w", current.QuotationNumber, current.Status, errs.ErrConflict)
	}
	if in.ClientID != current.ClientID {
		if _, err := s.clients.FindByID(ctx, in.ClientID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, errs.Validation("client %s does not exist", in.ClientID)
			}
			return nil, err
		}
	}

	items := in.Items
	if len(items) == 0 {
		items = current.Items
	}
	gstRate := current.Summary.GSTRate
	if in.GSTRate != nil {
		gstRate = *in.GSTRate
	}
	priced, summary, err := lifecycle.Price(items, gstRate, in.Discount, in.LabourCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	set := bson.M{
		"client_id":  in.ClientID,
		"project":    in.Project,
		"items":      priced,
		"summary":    summary,
		"notes":      in.Notes,
		"terms":      in.Terms,
		"updated_at": now,
	}
	if in.ValidTill != nil {
		set["valid_till"] = *in.ValidTill
	}
	details := ""
	if current.ClientStatus == models.ClientChangesRequested {
		set["client_status"] = models.ClientPending
		details = "revised after change request"
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"activity_log": activity("updated", now, details, "")},
	}

	var q models.Quotation
	err = s.collection().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": current.Status},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("quotation %s changed status while being edited: %w", current.QuotationNumber, errs.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update quotation %s: %w", id, err)
	}

	if in.ClientID != current.ClientID {
		s.moveClientCounter(ctx, current.ClientID, in.ClientID)
	}
	return &q, nil
}

func (s *quotationService) moveClientCounter(ctx context.Context, from, to utils.SixID) {
	if err := s.clients.AdjustCounters(ctx, from, models.ClientCounters{Quotations: -1}); err != nil {
		s.logger.Warn("Failed to decrement client quotation counter", zap.String("client_id", from.String()), zap.Error(err))
	}
	if err := s.clients.AdjustCounters(ctx, to, models.ClientCounters{Quotations: 1}); err != nil {
		s.logger.Warn("Failed to increment client quotation counter", zap.String("client_id", to.String()), zap.Error(err))
	}
}

// Delete removes a quotation unless it has been converted to an invoice.
func (s *quotationService) Delete(ctx context.Context, id utils.SixID) error {
	var q models.Quotation
	err := s.collection().FindOneAndDelete(ctx, bson.M{"_id": id, "invoice_id": bson.M{"$exists": false}}).Decode(&q)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("failed to delete quotation %s: %w", id, err)
		}
		if _, ferr := s.FindByID(ctx, id); ferr != nil {
			return ferr
		}
		return fmt.Errorf("quotation has been invoiced: %w", errs.ErrConflict)
	}
	if err := s.clients.AdjustCounters(ctx, q.ClientID, models.ClientCounters{Quotations: -1}); err != nil {
		s.logger.Warn("Failed to decrement client quotation counter", zap.String("client_id", q.ClientID.String()), zap.Error(err))
	}
	s.logger.Info("Quotation deleted", zap.String("quotation_id", id.String()), zap.String("number", q.QuotationNumber))
	return nil
}

// Duplicate copies the commercial content into a new draft with a new number.
func (s *quotationService) Duplicate(ctx context.Context, id utils.SixID) (*models.Quotation, error) {
	src, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	gst := src.Summary.GSTRate
	items := make([]models.CostItem, len(src.Items))
	copy(items, src.Items)
	return s.Create(ctx, &models.QuotationInput{
		ClientID:   src.ClientID,
		Project:    src.Project,
		Items:      items,
		GSTRate:    &gst,
		Discount:   src.Summary.Discount,
		LabourCost: src.Summary.LabourCost,
		Notes:      src.Notes,
		Terms:      src.Terms,
	})
}

// UpdateStatus applies an admin status change. The write is conditional on
// the status read beforehand, so a concurrent change yields ErrConflict
// instead of silently skipping a state.
func (s *quotationService) UpdateStatus(ctx context.Context, id utils.SixID, to models.QuotationStatus, ip string) (*models.Quotation, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CheckTransition(current.Status, to); err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	now := s.now()
	set := bson.M{"status": to, "updated_at": now}
	if field := lifecycle.StatusTimestampField(to); field != "" {
		set[field] = now
	}
	if to == models.QuotationDraft {
		set["client_status"] = models.ClientPending
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"activity_log": activity("status_changed", now, fmt.Sprintf("%s -> %s", current.Status, to), ip)},
	}

	var q models.Quotation
	err = s.collection().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": current.Status},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("quotation %s changed status concurrently: %w", current.QuotationNumber, errs.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update quotation status: %w", err)
	}
	s.logger.Info("Quotation status changed",
		zap.String("quotation_id", id.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)))
	return &q, nil
}

// IssueShareLink returns the quotation's live share link, minting one when
// none exists or the old one has expired. Issuing a link sends a draft.
// Repeated calls return the same token and expiry.
func (s *quotationService) IssueShareLink(ctx context.Context, id utils.SixID, notify bool) (*models.ShareLink, error) {
	q, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if q.AccessToken == "" || lifecycle.CheckTokenLive(q.TokenExpiresAt, now) != nil {
		if err := s.mintToken(ctx, q, now); err != nil {
			return nil, err
		}
	}
	if q.Status == models.QuotationDraft {
		if err := s.promoteDraft(ctx, q.ID, now, "shared with client"); err != nil {
			return nil, err
		}
	}

	q, err = s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	link := &models.ShareLink{
		AccessToken:  q.AccessToken,
		ShareableURL: s.cfg.ShareURL(q.AccessToken),
	}
	if q.TokenExpiresAt != nil {
		link.ExpiresAt = *q.TokenExpiresAt
	}

	if notify {
		s.notifyShared(ctx, q, link)
	}
	return link, nil
}

// mintToken stores a fresh token, conditional on the token observed in q so
// that concurrent issuers converge on a single winner.
func (s *quotationService) mintToken(ctx context.Context, q *models.Quotation, now time.Time) error {
	filter := bson.M{"_id": q.ID}
	if q.AccessToken == "" {
		filter["access_token"] = bson.M{"$exists": false}
	} else {
		filter["access_token"] = q.AccessToken
	}
	expires := lifecycle.TokenExpiry(q.ValidTill, now, s.cfg.ShareLinkTTL)

	return db.Try(func() error {
		token, err := utils.NewAccessToken()
		if err != nil {
			return err
		}
		res, err := s.collection().UpdateOne(ctx, filter, bson.M{
			"$set": bson.M{
				"access_token":     token,
				"token_expires_at": expires,
				"updated_at":       now,
			},
			"$push": bson.M{"activity_log": activity("share_link_issued", now, "", "")},
		})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			s.logger.Debug("Share token issued concurrently, using the stored one", zap.String("quotation_id", q.ID.String()))
		}
		return nil
	})
}

// promoteDraft moves a draft to sent. Losing the race to another promotion is fine.
func (s *quotationService) promoteDraft(ctx context.Context, id utils.SixID, now time.Time, details string) error {
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.QuotationDraft},
		bson.M{
			"$set": bson.M{
				"status":     models.QuotationSent,
				"sent_at":    now,
				"updated_at": now,
			},
			"$push": bson.M{"activity_log": activity("status_changed", now, "draft -> sent: "+details, "")},
		})
	if err != nil {
		return fmt.Errorf("failed to mark quotation sent: %w", err)
	}
	return nil
}

func (s *quotationService) notifyShared(ctx context.Context, q *models.Quotation, link *models.ShareLink) {
	client, err := s.clients.FindByID(ctx, q.ClientID)
	if err != nil || client.Email == "" {
		s.logger.Info("Share link not emailed, client has no email", zap.String("quotation_id", q.ID.String()))
		return
	}
	company := s.settings.Get().Company
	task, err := jobs.NewEmailTask(jobs.EmailTaskPayload{
		To:         client.Email,
		TemplateID: jobs.EmailQuotationShared,
		Data: map[string]interface{}{
			"client_name":      client.Name,
			"quotation_number": q.QuotationNumber,
			"grand_total":      fmt.Sprintf("%.2f", q.Summary.GrandTotal),
			"link":             link.ShareableURL,
			"expires_at":       link.ExpiresAt.Format("2 Jan 2006"),
			"company_name":     company.Name,
		},
	})
	if err := jobs.Enqueue(ctx, s.queue, task, err); err != nil {
		s.logger.Warn("Failed to enqueue share email", zap.String("quotation_id", q.ID.String()), zap.Error(err))
	}
}

// FindByToken resolves a share token. Unknown tokens are NotFound, expired ones Gone.
func (s *quotationService) FindByToken(ctx context.Context, token string) (*models.Quotation, error) {
	if !utils.IsAccessToken(token) {
		return nil, errs.NotFound("quotation")
	}
	var q models.Quotation
	if err := s.collection().FindOne(ctx, bson.M{"access_token": token}).Decode(&q); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("quotation")
		}
		return nil, fmt.Errorf("failed to find quotation by token: %w", err)
	}
	if err := lifecycle.CheckTokenLive(q.TokenExpiresAt, s.now()); err != nil {
		return nil, err
	}
	return &q, nil
}

// MarkViewed records the first view by the client. It only ever moves
// pending to viewed, so repeated calls are no-ops.
func (s *quotationService) MarkViewed(ctx context.Context, id utils.SixID, ip string) error {
	now := s.now()
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id, "client_status": models.ClientPending},
		bson.M{
			"$set": bson.M{
				"client_status": models.ClientViewed,
				"viewed_at":     now,
				"updated_at":    now,
			},
			"$push": bson.M{"activity_log": activity("viewed_by_client", now, "", ip)},
		})
	if err != nil {
		return fmt.Errorf("failed to mark quotation viewed: %w", err)
	}
	return nil
}

func (s *quotationService) RespondByToken(ctx context.Context, token string, resp *models.ClientResponse) (*models.Quotation, error) {
	outcome, err := lifecycle.OutcomeFor(resp.Action)
	if err != nil {
		return nil, err
	}
	q, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.applyResponse(ctx, q, outcome, resp, feedbackSourceClient)
}

// SubmitAdminFeedback records a response on the client's behalf. A draft is
// treated as sent first, since the client has evidently seen it.
func (s *quotationService) SubmitAdminFeedback(ctx context.Context, id utils.SixID, resp *models.ClientResponse) (*models.Quotation, error) {
	outcome, err := lifecycle.OutcomeFor(resp.Action)
	if err != nil {
		return nil, err
	}
	q, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyResponse(ctx, q, outcome, resp, feedbackSourceAdmin)
}

func (s *quotationService) applyResponse(ctx context.Context, q *models.Quotation, outcome lifecycle.Outcome, resp *models.ClientResponse, source string) (*models.Quotation, error) {
	from := q.Status
	promote := source == feedbackSourceAdmin && from == models.QuotationDraft
	if promote {
		from = models.QuotationSent
	}
	if err := lifecycle.CheckResponse(from, outcome); err != nil {
		return nil, fmt.Errorf("quotation %s cannot take a %s response: %w", q.QuotationNumber, resp.Action, err)
	}

	now := s.now()
	fb := models.ClientFeedback{
		Action:           resp.Action,
		Comments:         strings.TrimSpace(resp.Comments),
		RequestedChanges: resp.RequestedChanges,
		RespondedAt:      now,
		IP:               resp.IP,
		UserAgent:        resp.UserAgent,
		Source:           source,
	}
	if resp.Action == models.ActionReject {
		fb.RejectionReason = strings.TrimSpace(resp.Reasons)
	}

	set := bson.M{
		"status":          outcome.Status,
		"client_status":   outcome.ClientStatus,
		"client_feedback": fb,
		"updated_at":      now,
	}
	if field := lifecycle.StatusTimestampField(outcome.Status); field != "" && field != "sent_at" {
		set[field] = now
	}
	if q.SentAt == nil {
		set["sent_at"] = now
	}
	details := fb.Comments
	if fb.RejectionReason != "" {
		details = fb.RejectionReason
	}
	action := outcome.Activity
	if source == feedbackSourceAdmin {
		action = "admin_feedback"
		details = strings.TrimSpace(string(resp.Action) + ": " + details)
	}
	push := bson.M{"activity_log": activity(action, now, details, resp.IP)}
	if q.ClientFeedback != nil {
		push["feedback_history"] = *q.ClientFeedback
	}

	// The prior feedback is pushed to history, so it must still be current.
	// Every later response grows the history, which tells same-millisecond
	// responses apart.
	filter := bson.M{"_id": q.ID, "status": q.Status, "client_feedback": nil}
	if q.ClientFeedback != nil {
		delete(filter, "client_feedback")
		filter["client_feedback.responded_at"] = q.ClientFeedback.RespondedAt
		if n := len(q.FeedbackHistory); n > 0 {
			filter["feedback_history"] = bson.M{"$size": n}
		} else {
			filter["feedback_history.0"] = bson.M{"$exists": false}
		}
	}

	var updated models.Quotation
	err := s.collection().FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": set, "$push": push},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("quotation %s changed while the response was recorded: %w", q.QuotationNumber, errs.ErrConflict)
		}
		return nil, fmt.Errorf("failed to record response: %w", err)
	}

	s.metrics.ObserveQuotationResponse(string(resp.Action), source)
	s.logger.Info("Quotation response recorded",
		zap.String("quotation_id", q.ID.String()),
		zap.String("action", string(resp.Action)),
		zap.String("source", source))

	s.afterResponse(ctx, &updated, outcome, source)
	return &updated, nil
}

// afterResponse raises the dashboard notification and emails the company.
// Neither failure undoes the recorded response.
func (s *quotationService) afterResponse(ctx context.Context, q *models.Quotation, outcome lifecycle.Outcome, source string) {
	clientName := "The client"
	if c, err := s.clients.FindByID(ctx, q.ClientID); err == nil {
		clientName = c.Name
	}
	fb := q.ClientFeedback
	message := fmt.Sprintf("%s responded to %s: %s", clientName, q.QuotationNumber, fb.Action)
	if source == feedbackSourceAdmin {
		message += " (recorded by staff)"
	}
	if fb.Comments != "" {
		message += ". " + fb.Comments
	}

	_, err := s.notifications.Create(ctx, &models.Notification{
		Type:    outcome.Notification,
		Title:   outcome.Title,
		Message: message,
		Entity:  &models.EntityRef{Kind: "quotation", ID: q.ID},
	})
	if err != nil {
		s.logger.Error("Failed to create response notification", zap.String("quotation_id", q.ID.String()), zap.Error(err))
	}

	if q.Status == models.QuotationAccepted {
		task, err := jobs.NewPDFArchiveTask(jobs.PDFArchivePayload{QuotationID: q.ID.String()})
		if err := jobs.Enqueue(ctx, s.queue, task, err); err != nil {
			s.logger.Warn("Failed to enqueue pdf archive", zap.String("quotation_id", q.ID.String()), zap.Error(err))
		}
	}

	to := s.settings.Get().Company.Email
	if to == "" || source != feedbackSourceClient {
		return
	}
	task, err := jobs.NewEmailTask(jobs.EmailTaskPayload{
		To:         to,
		TemplateID: jobs.EmailQuotationResponded,
		Data: map[string]interface{}{
			"client_name":      clientName,
			"quotation_number": q.QuotationNumber,
			"action":           string(fb.Action),
			"comments":         fb.Comments,
			"reasons":          fb.RejectionReason,
		},
	})
	if err := jobs.Enqueue(ctx, s.queue, task, err); err != nil {
		s.logger.Warn("Failed to enqueue response email", zap.String("quotation_id", q.ID.String()), zap.Error(err))
	}
}

func (s *quotationService) GetFeedback(ctx context.Context, id utils.SixID) (*models.FeedbackView, error) {
	q, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.FeedbackView{
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		ClientStatus:    q.ClientStatus,
		ClientFeedback:  q.ClientFeedback,
		FeedbackHistory: q.FeedbackHistory,
	}, nil
}

func (s *quotationService) ListWithFeedback(ctx context.Context, page models.PageRequest) ([]models.Quotation, int64, error) {
	var out []models.Quotation
	total, err := findPage(ctx, s.collection(),
		bson.M{"client_feedback": bson.M{"$exists": true}},
		bson.D{{Key: "client_feedback.responded_at", Value: -1}},
		page, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quotations with feedback: %w", err)
	}
	return out, total, nil
}

type groupCount struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (s *quotationService) FeedbackStatistics(ctx context.Context) (*models.FeedbackStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"client_feedback": bson.M{"$exists": true}}}},
		{{Key: "$facet", Value: bson.M{
			"by_status": bson.A{bson.M{"$group": bson.M{"_id": "$client_status", "count": bson.M{"$sum": 1}}}},
			"by_action": bson.A{bson.M{"$group": bson.M{"_id": "$client_feedback.action", "count": bson.M{"$sum": 1}}}},
		}}},
	}
	cur, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	var facets []struct {
		ByStatus []groupCount `bson:"by_status"`
		ByAction []groupCount `bson:"by_action"`
	}
	if err := cur.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("failed to decode feedback statistics: %w", err)
	}

	stats := &models.FeedbackStats{
		ByClientStatus: map[models.ClientStatus]int64{},
		ByAction:       map[models.FeedbackAction]int64{},
	}
	if len(facets) == 0 {
		return stats, nil
	}
	for _, g := range facets[0].ByStatus {
		stats.ByClientStatus[models.ClientStatus(g.Key)] = g.Count
		stats.TotalWithFeedback += g.Count
	}
	for _, g := range facets[0].ByAction {
		stats.ByAction[models.FeedbackAction(g.Key)] = g.Count
	}
	stats.ApprovalRate = approvalRate(stats.ByAction[models.ActionApprove], stats.TotalWithFeedback)
	return stats, nil
}

// approvalRate is the percentage of responses that were approvals, to two decimals.
func approvalRate(approved, total int64) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(approved) * 10000 / float64(total)
	return float64(int64(pct+0.5)) / 100
}

// ExpireStale moves drafts and sent quotations past their valid-till date to expired.
func (s *quotationService) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.collection().UpdateMany(ctx,
		bson.M{
			"status":     bson.M{"$in": bson.A{models.QuotationDraft, models.QuotationSent}},
			"valid_till": bson.M{"$lt": now},
		},
		bson.M{
			"$set": bson.M{
				"status":     models.QuotationExpired,
				"expired_at": now,
				"updated_at": now,
			},
			"$push": bson.M{"activity_log": activity("expired", now, "valid-till date passed", "")},
		})
	if err != nil {
		return 0, fmt.Errorf("failed to expire quotations: %w", err)
	}
	if res.ModifiedCount > 0 {
		s.logger.Info("Expired stale quotations", zap.Int64("count", res.ModifiedCount))
	}
	return res.ModifiedCount, nil
}

// LinkInvoice records the conversion of an accepted quotation. It fails with
// ErrConflict when the quotation already points at an invoice.
func (s *quotationService) LinkInvoice(ctx context.Context, id, invoiceID utils.SixID) error {
	now := s.now()
	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.QuotationAccepted, "invoice_id": bson.M{"$exists": false}},
		bson.M{
			"$set":  bson.M{"invoice_id": invoiceID, "updated_at": now},
			"$push": bson.M{"activity_log": activity("converted_to_invoice", now, invoiceID.String(), "")},
		})
	if err != nil {
		return fmt.Errorf("failed to link invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("quotation is not accepted or already invoiced: %w", errs.ErrConflict)
	}
	return nil
}

func (s *quotationService) UnlinkInvoice(ctx context.Context, id utils.SixID) error {
	_, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$unset": bson.M{"invoice_id": ""},
		"$set":   bson.M{"updated_at": s.now()},
	})
	if err != nil {
		return fmt.Errorf("failed to unlink invoice: %w", err)
	}
	return nil
}
