package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"buildex/backoffice/internal/api"
	"buildex/backoffice/internal/cache"
	"buildex/backoffice/internal/captcha"
	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/email"
	"buildex/backoffice/internal/logging"
	"buildex/backoffice/internal/observability"
	"buildex/backoffice/internal/pdf"
	"buildex/backoffice/internal/services"
	"buildex/backoffice/internal/storage"
	"buildex/backoffice/internal/tasks"
)

const shutdownTimeout = 15 * time.Second

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	switch cfg.RunMode {
	case "api", "bg", "all":
	default:
		logger.Fatal("Invalid run mode", zap.String("mode", cfg.RunMode))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient, logger); err != nil {
			logger.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()
	if err := db.EnsureIndexes(ctx, mongoDb, cfg.RequestLogTTL, logger); err != nil {
		logger.Fatal("Failed to create indexes", zap.Error(err))
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient, logger); err != nil {
			logger.Error("Error disconnecting from Redis", zap.Error(err))
		}
	}()

	// Storage is optional: without a bucket, logos and PDF archives are unavailable.
	var store storage.IS3Storage
	if s3Store, err := storage.NewS3Storage(cfg, logger); err != nil {
		logger.Warn("S3 storage disabled", zap.Error(err))
	} else {
		store = s3Store
	}

	var renderer pdf.Renderer
	if cfg.GotenbergURL != "" {
		gotenberg := pdf.NewGotenbergClient(cfg.GotenbergURL, cfg.PdfTimeout)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := gotenberg.Ping(pingCtx); err != nil {
			logger.Warn("Gotenberg is not reachable, PDF rendering will fail until it is", zap.String("url", cfg.GotenbergURL), zap.Error(err))
		}
		pingCancel()
		renderer = gotenberg
	}

	metrics := observability.NewMetrics()
	taskClient := tasks.NewClient(cfg)
	defer taskClient.Close()

	settingsSvc, err := services.NewSettingsService(ctx, mongoDb, cfg, redisClient, store, logger)
	if err != nil {
		logger.Fatal("Failed to load settings", zap.Error(err))
	}
	go func() {
		if err := settingsSvc.SubscribeToChanges(ctx); err != nil {
			logger.Error("Settings subscription stopped", zap.Error(err))
		}
	}()

	clientSvc := services.NewClientService(mongoDb, logger)
	counterSvc := services.NewCounterService(mongoDb)
	templateSvc := services.NewTemplateService(mongoDb)
	notificationSvc := services.NewNotificationService(mongoDb, logger)
	quotationSvc := services.NewQuotationService(mongoDb, cfg, logger, services.QuotationDeps{
		Clients:       clientSvc,
		Counters:      counterSvc,
		Settings:      settingsSvc,
		Templates:     templateSvc,
		Notifications: notificationSvc,
		Queue:         taskClient,
		Metrics:       metrics,
	})
	invoiceSvc := services.NewInvoiceService(mongoDb, cfg, logger, clientSvc, counterSvc, settingsSvc, quotationSvc)
	paymentSvc := services.NewPaymentService(mongoDb, cfg, logger, invoiceSvc, clientSvc)
	dashboardSvc := services.NewDashboardService(mongoDb, cache.NewJSONCache(redisClient, "dashboard"), cfg.GetCacheTTL, logger)
	requestLogSvc := services.NewRequestLogService(mongoDb)
	adminSvc := services.NewAdminService(mongoDb, logger)
	pdfSvc := services.NewQuotationPDFService(quotationSvc, clientSvc, settingsSvc, renderer, store, logger)
	emailTemplateSvc := services.NewEmailTemplateService(mongoDb)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, settingsSvc, taskClient, metrics, shutdownChan, logger),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Service API ListenAndServe error", zap.Error(err))
		}
		logger.Info("Service API server stopped")
	}()

	var (
		mainApiSrv *http.Server
		taskSrv    *asynq.Server
		scheduler  *asynq.Scheduler
	)

	logger.Info("Starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		limiter := api.NewRateLimiter(cfg, logger)
		go limiter.RunCleanup(ctx)

		router := api.SetupRouter(cfg, api.Services{
			Admins:        adminSvc,
			Clients:       clientSvc,
			Quotations:    quotationSvc,
			Invoices:      invoiceSvc,
			Payments:      paymentSvc,
			Notifications: notificationSvc,
			Templates:     templateSvc,
			Settings:      settingsSvc,
			Dashboard:     dashboardSvc,
			RequestLogs:   requestLogSvc,
			PDFs:          pdfSvc,
		}, captcha.NewTurnstileVerifier(cfg, logger), limiter, taskClient, metrics, logger)

		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("Main API ListenAndServe error", zap.Error(err))
			}
			logger.Info("Main API server stopped")
		}()
	}

	bgMode := func() {
		sender := email.NewCompositeEmailSender(email.NewSMTPSender(cfg, logger))
		if cfg.MockServices {
			logger.Info("MOCK_SERVICES enabled, capturing emails in redis")
			sender = email.NewCompositeEmailSender(email.NewRedisSender(redisClient, cfg.SmtpFromAddress, logger))
		}
		if cfg.LogEmailsPath != "" {
			fileSender, err := email.NewFileEmailSender(cfg.LogEmailsPath, logger)
			if err != nil {
				logger.Warn("Failed to initialise file email sender", zap.String("path", cfg.LogEmailsPath), zap.Error(err))
			} else {
				sender.AddSender(fileSender)
			}
		}

		processor := tasks.NewTaskProcessor(cfg, tasks.Deps{
			EmailSender:    sender,
			EmailTemplates: emailTemplateSvc,
			PDFs:           pdfSvc,
			Quotations:     quotationSvc,
			Invoices:       invoiceSvc,
			Clients:        clientSvc,
			Notifications:  notificationSvc,
			Dashboard:      dashboardSvc,
			Settings:       settingsSvc,
			Queue:          taskClient,
			Metrics:        metrics,
		}, logger)

		taskSrv = tasks.SetupServer(cfg, logger)
		if err := taskSrv.Start(processor.Mux()); err != nil {
			logger.Fatal("Background task server error", zap.Error(err))
		}

		var err error
		if scheduler, err = tasks.NewScheduler(cfg, logger); err != nil {
			logger.Fatal("Failed to configure scheduler", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal("Scheduler error", zap.Error(err))
		}
		logger.Info("Background worker started")
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		logger.Info("Shutdown requested via service API")
	}
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Service API server shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error("Main API server shutdown error", zap.Error(err))
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}

	wg.Wait()
	logger.Info("Server gracefully stopped")
}
