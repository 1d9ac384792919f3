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

	"carelink/api/internal/app"
	"carelink/api/internal/authpw"
	"carelink/api/internal/config"
	"carelink/api/internal/docs"
	"carelink/api/internal/email"
	"carelink/api/internal/export"
	"carelink/api/internal/planrepo"
	"carelink/api/internal/search"
	"carelink/api/internal/session"
	"carelink/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.PlanReposDir, 0o755); err != nil {
		log.Fatalf("failed to create plan repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	planRepos := planrepo.New(cfg.PlanReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
	}

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, falling back to PostgreSQL sessions: %v", err)
			sessions = session.NewPostgresStore(dataStore)
		} else {
			log.Printf("Using Redis for refresh token storage")
			defer redisStore.Close()
			sessions = redisStore
		}
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		sessions = session.NewPostgresStore(dataStore)
	}

	var docsService *docs.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		docsService, err = docs.NewService(ctx, docs.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("document storage failed: %v", err)
		}
		log.Printf("Document storage enabled (bucket %s)", cfg.MinioBucket)
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !emailService.IsConfigured() {
		log.Printf("SMTP not configured, outbound email disabled")
	}

	exportService := export.NewService(dataStore)
	authService := authpw.NewService(dataStore)

	service := app.New(cfg, dataStore, sessions, planRepos, searchService, exportService, docsService, emailService, authService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CareLink API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
