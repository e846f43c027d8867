package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"buildex/backoffice/internal/api/handlers"
	"buildex/backoffice/internal/api/middleware"
	"buildex/backoffice/internal/captcha"
	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/observability"
	"buildex/backoffice/internal/services"
)

// Services are the dependencies of the public API.
type Services struct {
	Admins        services.IAdminService
	Clients       services.IClientService
	Quotations    services.IQuotationService
	Invoices      services.IInvoiceService
	Payments      services.IPaymentService
	Notifications services.INotificationService
	Templates     services.ITemplateService
	Settings      services.ISettingsService
	Dashboard     services.IDashboardService
	RequestLogs   services.IRequestLogService
	PDFs          services.IQuotationPDFService
}

// Tighter buckets for the unauthenticated endpoints that write.
var publicRouteLimits = map[string]middleware.RouteLimits{
	"/api/auth/login": {
		Soft: middleware.Bucket{Size: 5, Rate: 1},
		Hard: middleware.Bucket{Size: 20, Rate: 1},
	},
	"/api/auth/register-public": {
		Soft: middleware.Bucket{Size: 2, Rate: 1},
		Hard: middleware.Bucket{Size: 5, Rate: 1},
	},
	"/api/public/quotations/:token/respond": {
		Soft: middleware.Bucket{Size: 3, Rate: 1},
		Hard: middleware.Bucket{Size: 10, Rate: 1},
	},
}

// NewRateLimiter builds the limiter used by SetupRouter. The caller owns its cleanup loop.
func NewRateLimiter(cfg *config.Config, logger *zap.Logger) *middleware.RateLimiterMiddleware {
	return middleware.NewRateLimiterMiddleware(cfg, publicRouteLimits, logger)
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(
	cfg *config.Config,
	svc Services,
	verifier captcha.ITurnstileVerifier,
	limiter *middleware.RateLimiterMiddleware,
	queue jobs.Enqueuer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigins))
	r.Use(metrics.Middleware())
	r.Use(middleware.RequestLogger(svc.RequestLogs, logger, "/api/ping", "/api/logs"))

	authHandler := handlers.NewAuthHandler(cfg, svc.Admins)
	clientHandler := handlers.NewClientHandler(svc.Clients)
	quotationHandler := handlers.NewQuotationHandler(svc.Quotations, svc.Clients, svc.Invoices, svc.PDFs, queue, logger)
	publicHandler := handlers.NewPublicHandler(svc.Quotations, svc.Clients, svc.Settings, svc.Dashboard, logger)
	invoiceHandler := handlers.NewInvoiceHandler(svc.Invoices)
	paymentHandler := handlers.NewPaymentHandler(svc.Payments)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	templateHandler := handlers.NewTemplateHandler(svc.Templates)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings, logger)
	dashboardHandler := handlers.NewDashboardHandler(svc.Dashboard)
	logHandler := handlers.NewLogHandler(svc.RequestLogs)

	apiGroup := r.Group("/api")
	apiGroup.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	// Unauthenticated routes sit behind captcha and rate limiting.
	guarded := []gin.HandlerFunc{middleware.CaptchaMiddleware(cfg, verifier, logger), limiter.Limit()}

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/login", append(guarded, authHandler.Login)...)
		authGroup.POST("/register-public", append(guarded, authHandler.Register)...)
		authGroup.GET("/me", middleware.AuthMiddleware(cfg.JwtSecret), authHandler.Me)
	}

	public := apiGroup.Group("/public", guarded...)
	public.Use(middleware.InvalidateOnWrite(svc.Dashboard))
	{
		public.GET("/quotations/:token", publicHandler.GetQuotation)
		public.POST("/quotations/:token/respond", publicHandler.Respond)
	}

	authed := apiGroup.Group("/")
	authed.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.InvalidateOnWrite(svc.Dashboard))
	{
		clients := authed.Group("/clients")
		clients.POST("", clientHandler.Create)
		clients.GET("", clientHandler.List)
		clients.GET("/:id", clientHandler.Get)
		clients.PUT("/:id", clientHandler.Update)
		clients.DELETE("/:id", clientHandler.Delete)
		clients.POST("/:id/reconcile", clientHandler.Reconcile)

		quotations := authed.Group("/quotations")
		quotations.POST("", quotationHandler.Create)
		quotations.GET("", quotationHandler.List)
		quotations.GET("/feedback/list", quotationHandler.ListFeedback)
		quotations.GET("/feedback/stats", quotationHandler.FeedbackStats)
		quotations.GET("/:id", quotationHandler.Get)
		quotations.PUT("/:id", quotationHandler.Update)
		quotations.DELETE("/:id", quotationHandler.Delete)
		quotations.PUT("/:id/status", quotationHandler.UpdateStatus)
		quotations.GET("/:id/share-link", quotationHandler.ShareLink)
		quotations.POST("/:id/duplicate", quotationHandler.Duplicate)
		quotations.POST("/:id/convert", quotationHandler.Convert)
		quotations.POST("/:id/feedback", quotationHandler.SubmitFeedback)
		quotations.GET("/:id/feedback", quotationHandler.GetFeedback)
		quotations.POST("/:id/pdf", quotationHandler.PDF)
		quotations.GET("/:id/pdf/url", quotationHandler.PDFURL)

		invoices := authed.Group("/invoices")
		invoices.POST("", invoiceHandler.Create)
		invoices.GET("", invoiceHandler.List)
		invoices.GET("/:id", invoiceHandler.Get)
		invoices.PUT("/:id", invoiceHandler.Update)
		invoices.DELETE("/:id", invoiceHandler.Delete)
		invoices.PUT("/:id/status", invoiceHandler.UpdateStatus)

		payments := authed.Group("/payments")
		payments.POST("", paymentHandler.Create)
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.DELETE("/:id", paymentHandler.Delete)

		notifications := authed.Group("/notifications")
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.PUT("/read-all", notificationHandler.MarkAllRead)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)

		templates := authed.Group("/templates")
		templates.POST("", templateHandler.Create)
		templates.GET("", templateHandler.List)
		templates.GET("/:id", templateHandler.Get)
		templates.PUT("/:id", templateHandler.Update)
		templates.DELETE("/:id", templateHandler.Delete)

		authed.GET("/dashboard/stats", dashboardHandler.Stats)

		logs := authed.Group("/logs")
		logs.GET("", logHandler.List)
		logs.GET("/stats", logHandler.Stats)
		logs.GET("/live", logHandler.Live)
		logs.DELETE("", middleware.OwnerMiddleware(), logHandler.Clear)

		settings := authed.Group("/settings")
		settings.GET("", settingsHandler.Get)
		settings.PUT("", middleware.OwnerMiddleware(), settingsHandler.Update)
		settings.PUT("/logo", middleware.OwnerMiddleware(), settingsHandler.UploadLogo)
	}

	return r
}

// SetupServiceRouter configures the internal service engine: operational
// JSON methods and Prometheus metrics.
func SetupServiceRouter(rdb *redis.Client, settings handlers.SettingsReloader, queue jobs.Enqueuer, metrics *observability.Metrics, shutdownChan chan<- struct{}, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(nil, logger))

	serviceHandler := handlers.NewServiceApiHandler(rdb, settings, queue, shutdownChan, logger)
	r.POST("/api", serviceHandler.HandleRequest)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}
