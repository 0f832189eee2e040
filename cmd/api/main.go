package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hearth/api/internal/app"
	"hearth/api/internal/attachments"
	"hearth/api/internal/authpw"
	"hearth/api/internal/broadcast"
	"hearth/api/internal/config"
	"hearth/api/internal/logging"
	"hearth/api/internal/search"
	"hearth/api/internal/session"
	"hearth/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogJSON)
	logger := logging.WithComponent("main")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 15*time.Second)
	db, err := store.Open(bootCtx, cfg.DatabaseURL)
	bootCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer migrateCancel()
	if err := store.ApplyMigrations(migrateCtx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	st := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect session store")
	}
	defer sessions.Close()

	broadcaster, err := broadcast.NewRedisBroadcaster(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect broadcaster")
	}
	defer broadcaster.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub(broadcaster, []string{cfg.CORSOrigin})
	go hub.Run(ctx)

	var meiliClient *search.Meili
	if cfg.MeiliURL != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchSvc := search.NewService(meiliClient, search.NewPgFTS(db))
	searchSvc.ReindexAllFromPG(ctx)

	var attachmentSvc *attachments.Service
	if cfg.MinioEndpoint != "" {
		attachmentSvc, err = attachments.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect attachment store")
		}
		if err := attachmentSvc.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ensure attachment bucket")
		}
	}

	auth := authpw.NewService(st)
	var svc *app.Service
	if attachmentSvc != nil {
		svc = app.New(cfg, st, sessions, broadcaster, searchSvc, attachmentSvc, auth)
	} else {
		svc = app.New(cfg, st, sessions, broadcaster, searchSvc, nil, auth)
	}
	server := app.NewServer(svc, hub, attachmentSvc, cfg.CORSOrigin)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
