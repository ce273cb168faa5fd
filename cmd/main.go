package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"notification-dispatch/internal/api"
	"notification-dispatch/internal/cache"
	"notification-dispatch/internal/config"
	"notification-dispatch/internal/cost"
	"notification-dispatch/internal/db"
	"notification-dispatch/internal/kafka"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/memstore"
	"notification-dispatch/internal/metrics"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification"
	"notification-dispatch/internal/providers"
	"notification-dispatch/internal/recipient"
	"notification-dispatch/internal/templates"
	"notification-dispatch/pkg/email"
	"notification-dispatch/pkg/sms"
	"notification-dispatch/pkg/telegram"
)

type store interface {
	notification.Store
	templates.Store
}

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()
	logger.SetMasking(cfg.App.MaskContacts || cfg.App.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var st store
	switch cfg.DB.Storage {
	case "memory":
		logger.Warnf("Using in-memory storage, history is lost on restart")
		st = memstore.New()
	default:
		dbConn, err := db.New(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Errorf("Failed to connect to database: %v", err)
			log.Fatalf("Database connection failed: %v", err)
		}
		defer dbConn.Close()
		if err := dbConn.Migrate(ctx); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		st = dbConn
	}

	var templateStore templates.Store = st
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warnf("Redis unavailable, template cache disabled: %v", err)
		} else {
			defer client.Close()
			templateStore = cache.NewTemplateStore(client, st, cfg.Redis.TTL, logger)
			logger.Infof("Template cache enabled at %s", cfg.Redis.Addr)
		}
	}
	templateSvc := templates.NewService(templateStore, logger)

	validator, err := recipient.NewValidator(cfg.Notification.PhonePattern)
	if err != nil {
		log.Fatalf("Invalid phone pattern: %v", err)
	}
	estimator, err := cost.NewEstimator(cfg.Cost)
	if err != nil {
		log.Fatalf("Invalid cost rates: %v", err)
	}

	// Channel adapters
	hub := providers.NewHub(logger)
	defer hub.Close()
	adapters := buildAdapters(ctx, cfg, hub, logger)

	// Event sinks
	metricsSink := metrics.New(nil)
	sinks := notification.Sinks{metricsSink}
	if cfg.Kafka.Broker != "" {
		writer := kafka.NewEventWriter([]string{cfg.Kafka.Broker}, cfg.Kafka.EventsTopic)
		defer writer.Close()
		sinks = append(sinks, writer)
	}
	if cfg.Telegram.BotToken != "" {
		tg, err := telegram.New(cfg.Telegram.BotToken, []int64{cfg.Telegram.ChatID})
		if err != nil {
			logger.Warnf("Telegram alerts disabled: %v", err)
		} else {
			sinks = append(sinks, providers.NewTelegramAlerts(tg, logger))
		}
	}

	var wg sync.WaitGroup
	publisher := notification.NewPublisher(sinks, cfg.Notification.QueueSize, logger)
	publisher.Start(ctx, &wg)

	dispatcher := notification.NewDispatcher(st, templateSvc, adapters, validator, logger, cfg)
	dispatcher.SetEventSink(publisher)
	tracker := notification.NewTracker(st, dispatcher, logger)

	scheduler := notification.NewScheduler(st, dispatcher, cfg.Notification.SchedulerInterval, logger)
	scheduler.Start(ctx, &wg)

	queue := notification.NewQueue(dispatcher, logger, cfg)
	queue.Start(&wg)

	// Initialize Kafka consumer
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, queue, logger)
		defer consumer.Close()
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	// Start API server
	handler := api.NewHandler(dispatcher, tracker, templateSvc, estimator, hub, logger)
	router := api.NewRouter(handler, logger, cfg, metricsSink.Handler())
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s (env=%s, dryRun=%t)", cfg.API.Port, cfg.App.Name, cfg.App.DryRun)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}
	queue.Stop()
	wg.Wait()
	logger.Infof("Shutdown complete")
}

func buildAdapters(ctx context.Context, cfg config.Config, hub *providers.Hub, logger *logging.Logger) providers.Registry {
	r := providers.Registry{}
	rps := cfg.Notification.RatePerSecond
	cc := cfg.Notification.PhoneCountryCode

	switch {
	case cfg.Email.Provider == "ses":
		transport, err := email.NewSES(ctx, cfg.Email.SESRegion)
		if err != nil {
			logger.Errorf("SES email disabled: %v", err)
			break
		}
		r.Register(providers.NewEmail(transport, cfg.Email.From, cfg.Email.FromName, logger))
	case cfg.Email.SMTPServer != "":
		transport := email.NewSMTP(cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password)
		r.Register(providers.NewEmail(transport, cfg.Email.From, cfg.Email.FromName, logger))
	}

	if cfg.WhatsApp.AccountSID != "" {
		wa := sms.NewWhatsApp(cfg.WhatsApp.AccountSID, cfg.WhatsApp.AuthToken, cfg.WhatsApp.FromNumber)
		r.Register(providers.NewPhone(models.ChannelWhatsApp, wa, rps, cc, logger))
	}

	switch {
	case cfg.SMS.Provider == "sns":
		sender, err := sms.NewSNS(ctx, cfg.SMS.SNSRegion, cfg.SMS.SenderID)
		if err != nil {
			logger.Errorf("SNS sms disabled: %v", err)
			break
		}
		r.Register(providers.NewPhone(models.ChannelSMS, sender, rps, cc, logger))
	case cfg.SMS.AccountSID != "":
		sender := sms.NewTwilio(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber)
		r.Register(providers.NewPhone(models.ChannelSMS, sender, rps, cc, logger))
	}

	r.Register(providers.NewWeb(hub))

	for _, ch := range models.Channels {
		if _, ok := r[ch]; !ok {
			logger.Warnf("Channel %s not configured, sends will fail", ch)
		}
	}
	return r
}
