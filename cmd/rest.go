package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/govconnect/channel-gateway/core/config"
	"github.com/govconnect/channel-gateway/core/database"
	settingsApp "github.com/govconnect/channel-gateway/core/settings/application"
	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	"github.com/govconnect/channel-gateway/infrastructure/bus"
	"github.com/govconnect/channel-gateway/infrastructure/chatstorage"
	"github.com/govconnect/channel-gateway/infrastructure/media"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	"github.com/govconnect/channel-gateway/pkg/circuit"
	"github.com/govconnect/channel-gateway/pkg/convworker"
	"github.com/govconnect/channel-gateway/pkg/retrytimer"
	"github.com/govconnect/channel-gateway/pkg/spamguard"
	"github.com/govconnect/channel-gateway/ui/rest"
	"github.com/govconnect/channel-gateway/ui/rest/middleware"
	"github.com/govconnect/channel-gateway/usecase"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the channel gateway HTTP server and bus consumers",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg := config.Global

	db, err := database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[DB] %v", err)
	}
	if err := chatstorage.AutoMigrate(db); err != nil {
		logrus.Fatalf("[DB] Migration failed: %v", err)
	}

	settingsService := settingsApp.NewSettingsService(db)
	if err := settingsService.InitSchema(context.Background()); err != nil {
		logrus.Fatalf("[DB] Settings schema failed: %v", err)
	}

	// Repositories
	messages := chatstorage.NewMessageGormRepository(db)
	convs := chatstorage.NewConversationGormRepository(db)
	takeovers := chatstorage.NewTakeoverGormRepository(db)
	pendings := chatstorage.NewPendingGormRepository(db)
	sendLogs := chatstorage.NewSendLogGormRepository(db)
	sessions := chatstorage.NewSessionGormRepository(db)
	accounts := chatstorage.NewChannelAccountGormRepository(db)

	// Infrastructure clients
	busClient := bus.NewClient(cfg.Bus.URL, bus.Options{
		Exchange:     cfg.Bus.Exchange,
		ReconnectMin: cfg.Bus.ReconnectMin,
		ReconnectMax: cfg.Bus.ReconnectMax,
		Jitter:       cfg.Bus.Jitter,
	})
	if err := busClient.Connect(); err != nil {
		logrus.WithError(err).Warn("[BUS] Starting without broker, reconnect loop is running")
	}

	providerClient := provider.NewClient(provider.Options{
		GatewayURL:       cfg.Provider.GatewayURL,
		SupportURL:       cfg.Provider.SupportURL,
		SupportAPIKey:    cfg.Provider.SupportAPIKey,
		DryRun:           cfg.Provider.DryRun,
		RequestTimeout:   cfg.Provider.RequestTimeout,
		SessionOpTimeout: cfg.Provider.SessionOpTimeout,
	})
	tokens := provider.NewTokenResolver(sessions, accounts)

	mediaStorage, err := media.NewStorage(media.Options{
		Root:            cfg.Media.StoragePath,
		InternalBaseURL: cfg.Media.InternalBaseURL,
		PublicBaseURL:   cfg.Media.PublicBaseURL,
		DownloadTimeout: cfg.Media.DownloadTimeout,
		MaxUploadSize:   cfg.Media.MaxUploadSize,
	})
	if err != nil {
		logrus.Fatalf("[MEDIA] %v", err)
	}

	// Circuit-broken JSON clients for the sibling services.
	var caseClient, notificationClient, aiClient *circuit.Client
	if cfg.Services.CaseServiceURL != "" {
		caseClient = circuit.NewClient("case-service", cfg.Services.CaseServiceURL, circuit.Options{})
	}
	if cfg.Services.NotificationServiceURL != "" {
		notificationClient = circuit.NewClient("notification-service", cfg.Services.NotificationServiceURL, circuit.Options{})
	}
	if cfg.Services.AIOrchestratorURL != "" {
		aiClient = circuit.NewClient("ai-orchestrator", cfg.Services.AIOrchestratorURL, circuit.Options{})
	}

	// Shared domain machinery
	guard := spamguard.NewGuard(spamguard.Config{
		Enabled:         cfg.SpamGuard.Enabled,
		MaxIdentical:    cfg.SpamGuard.MaxIdentical,
		BanDuration:     cfg.SpamGuard.BanDuration,
		RateMaxMessages: cfg.SpamGuard.RateMax,
		RateWindow:      cfg.SpamGuard.RateWindow,
	})
	guard.StartGC(10*time.Minute, 5*time.Minute)

	retries := retrytimer.NewScheduler()
	pool := convworker.NewPool(cfg.Forwarder.WorkerPoolSize, cfg.Forwarder.WorkerQueueSize)
	poolCtx, poolCancel := context.WithCancel(context.Background())
	pool.Start(poolCtx)

	janitor := chatstorage.NewJanitor(pendings)
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	go janitor.Start(janitorCtx)

	// Usecases
	forwarderService := usecase.NewForwarderService(
		busClient, providerClient, tokens,
		messages, convs, pendings, sendLogs, accounts,
		guard, retries, cfg.Forwarder.PublishRetryDelay,
	)
	ingestService := usecase.NewIngestService(
		sessions, messages, convs, pendings, takeovers,
		guard, forwarderService, mediaStorage, pool,
		cfg.App.DefaultVillageID, cfg.Media.DownloadTimeout,
	)
	sessionService := usecase.NewSessionService(sessions, accounts, providerClient, cfg.App.PublicBaseURL)
	livechatService := usecase.NewLiveChatService(
		messages, convs, takeovers, pendings, accounts,
		providerClient, tokens, guard, forwarderService, settingsService,
		aiClient, caseClient, notificationClient,
	)
	messagingService := usecase.NewMessagingService(
		messages, convs, sendLogs, accounts, providerClient, tokens, settingsService, cfg.App.DefaultVillageID,
	)
	healthService := usecase.NewHealthService(db, busClient, providerClient, cfg.App.Version, caseClient, notificationClient, aiClient)

	// Bus consumers
	if err := busClient.Subscribe(domainBus.QueueAIReply, domainBus.KeyAIReply, forwarderService.HandleAIReply); err != nil {
		logrus.WithError(err).Warn("[BUS] ai.reply consumer deferred")
	}
	if err := busClient.Subscribe(domainBus.QueueAIError, domainBus.KeyAIError, forwarderService.HandleAIError); err != nil {
		logrus.WithError(err).Warn("[BUS] ai.error consumer deferred")
	}
	if err := busClient.Subscribe(domainBus.QueueMessageStatus, domainBus.KeyMessageStatus, forwarderService.HandleMessageStatus); err != nil {
		logrus.WithError(err).Warn("[BUS] message.status consumer deferred")
	}

	// HTTP surface
	fiberConfig := fiber.Config{
		AppName:               "GovConnect Channel Gateway",
		BodyLimit:             int(cfg.Media.MaxUploadSize) + 1024*1024,
		DisableStartupMessage: false,
		Network:               "tcp",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.EnableTrustedProxyCheck = true
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}
	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, X-Internal-API-Key, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	rest.InitRestHealth(app, healthService)

	webhookGroup := app.Group("", middleware.WebhookAllowlist(cfg.App.WebhookAllowlist))
	rest.InitRestWebhook(webhookGroup, ingestService, cfg.Provider.WebhookVerifyToken)

	internal := app.Group("/internal", middleware.InternalAPIKey(cfg.App.InternalAPIKey))
	rest.InitRestMessages(internal, messagingService)
	rest.InitRestConversations(internal, livechatService)
	rest.InitRestWhatsApp(internal, sessionService)
	rest.InitRestChannelAccounts(internal, accounts)
	rest.InitRestMedia(internal, mediaStorage)
	rest.InitRestPending(internal, pendings)
	rest.InitRestSettings(internal, settingsService)

	app.Static("/media", cfg.Media.StoragePath)

	go func() {
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			logrus.Fatalf("[REST] Server stopped: %v", err)
		}
	}()
	logrus.Infof("[REST] Listening on :%s", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("[REST] Shutting down")

	// Shutdown order: stop accepting HTTP, flush timers and workers, drain
	// consumers, then release the database. Hard deadline of 10s.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Warn("[REST] HTTP shutdown failed")
		}
		retries.Stop()
		pool.Stop()
		poolCancel()
		guard.Stop()
		janitor.Stop()
		janitorCancel()
		if err := busClient.Close(); err != nil {
			logrus.WithError(err).Warn("[BUS] Close failed")
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	select {
	case <-done:
		logrus.Info("[REST] Shutdown complete")
	case <-time.After(10 * time.Second):
		logrus.Warn("[REST] Shutdown deadline exceeded, exiting")
	}
}
