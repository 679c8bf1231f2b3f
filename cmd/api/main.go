package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voiceattend/internal/archive"
	"voiceattend/internal/attendance"
	"voiceattend/internal/auth"
	"voiceattend/internal/config"
	"voiceattend/internal/dashboard"
	"voiceattend/internal/httpapi"
	"voiceattend/internal/metrics"
	"voiceattend/internal/queue"
	"voiceattend/internal/store"
	"voiceattend/internal/voiceclient"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := voiceclient.New(cfg.ServiceURL, cfg.ServiceTimeout)
	client.Observe = m.ObserveCall
	if err := client.Health(ctx); err != nil {
		log.Printf("warning: attendance service not reachable at %s: %v", cfg.ServiceURL, err)
	}

	checks := map[string]httpapi.HealthCheck{
		"service": func(ctx context.Context) bool { return client.Health(ctx) == nil },
	}

	// audit trail: events go to the queue, the DB is read for /v1/events
	var (
		sink   dashboard.EventSink
		events httpapi.EventLister
	)
	if cfg.AuditEnabled {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		}
		if db != nil {
			defer db.Close()
			if err := store.Migrate(ctx, db.Client); err != nil {
				log.Printf("warning: migrations not applied: %v", err)
			}
			events = attendance.NewRepository(db.Client)
			checks["db"] = db.Healthy
		}

		var q queue.Queue
		if cfg.QueueBackend == "memory" {
			// no worker can reach an in-process queue, so drain it here
			mem := queue.NewInMemory(256)
			q = mem
			if db != nil {
				audit := attendance.NewAuditService(attendance.NewRepository(db.Client))
				go func() { _ = queue.Run(ctx, mem, audit.Record) }()
			}
		} else {
			redisClient := store.NewRedis(cfg.RedisAddr)
			defer redisClient.Close()
			q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
			checks["redis"] = redisClient.Healthy
		}
		sink = queue.NewSink(q)
	}

	dash := dashboard.New(client, dashboard.Options{
		PollInterval: cfg.PollInterval,
		AckDelay:     cfg.FeedbackAckDelay,
		Metrics:      m,
		Events:       sink,
	})
	defer dash.Close()
	if _, err := dash.RefreshClasses(ctx); err != nil {
		log.Printf("warning: initial class list not loaded: %v", err)
	}

	var archiver dashboard.Archiver
	if cfg.ArchiveConfigured() {
		archiver = archive.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary archive configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary archive not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	h := httpapi.New(httpapi.Deps{
		Dashboard: dash,
		Profiles:  dashboard.NewProfiles(client, archiver),
		Events:    events,
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		OperatorKey: cfg.OperatorKey,
		Checks:      checks,
	})
	r := httpapi.NewRouter(h, httpapi.RouterOptions{
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ServiceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (attendance service %s)", cfg.HTTPPort, cfg.ServiceURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	dash.Close()
	stop()

	log.Println("Server exited")
	return nil
}
