package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"blupi/api/internal/app"
	"blupi/api/internal/authpw"
	"blupi/api/internal/config"
	"blupi/api/internal/email"
	"blupi/api/internal/export"
	"blupi/api/internal/notify"
	"blupi/api/internal/realtime"
	"blupi/api/internal/search"
	"blupi/api/internal/session"
	"blupi/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	pg := store.NewPostgresStore(db)

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		pingCancel()
		defer redisClient.Close()
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var emailService *email.Service
	if strings.TrimSpace(cfg.SMTPHost) != "" {
		emailService = email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		log.Printf("Outbound email enabled via %s", cfg.SMTPHost)
	} else {
		log.Printf("Outbound email disabled (SMTP_HOST not set)")
	}

	authService := authpw.NewService(pg)
	notifyService := notify.NewService(pg, emailService)
	exportService := export.NewService()

	var service *app.Service
	if redisClient != nil {
		log.Printf("Using Redis for refresh sessions")
		sessions := session.NewRedisStoreWithClient(redisClient)
		service = app.New(cfg, app.WrapStore(pg), sessions, authService, emailService, notifyService, searchService, exportService)
	} else {
		log.Printf("Using PostgreSQL for refresh sessions")
		service = app.New(cfg, app.WrapStore(pg), pg, authService, emailService, notifyService, searchService, exportService)
	}

	hub := realtime.NewHub()
	go hub.Run()
	if redisClient != nil {
		bridge := realtime.NewBridge(redisClient, hub)
		go bridge.Run(ctx)
		log.Printf("Realtime presence bridged across instances via Redis")
	}

	httpServer := app.NewHTTPServer(service, hub, cfg)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Blupi API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	cancel()
}
