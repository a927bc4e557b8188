package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabcore/config"
	"collabcore/config/database"
	"collabcore/internal/relay"
	"collabcore/pkg/logger"
	"collabcore/router"
	"collabcore/socket"
	"collabcore/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}

	logger.Init()
	defer logger.Log.Sync()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Sugar.Warn("JWT_SECRET is not set; every authenticated request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Element snapshots are optional; without a database the core runs in memory.
	var elements socket.ElementStore
	if cfg.DatabaseURL != "" || os.Getenv("host") != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Sugar.Fatalf("Could not connect to database: %v", err)
		}
		defer db.Close()

		repo := store.NewElementRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			logger.Sugar.Fatalf("Could not prepare element table: %v", err)
		}
		elements = repo
	} else {
		logger.Sugar.Info("No database configured, element state is kept in memory only")
	}

	// Broadcasts are mirrored to Redis when an address is configured.
	var publisher socket.Publisher
	if cfg.RedisAddr != "" {
		rdb, err := relay.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Sugar.Fatalf("Could not connect to Redis: %v", err)
		}
		defer rdb.Close()

		pub := relay.NewRedisPublisher(rdb, cfg.RedisChannelPrefix, cfg.Collab.SendBuffer)
		go pub.Run(ctx)
		publisher = pub
	}

	hub := socket.NewHub(cfg.Collab, elements, publisher)

	saverDone := make(chan struct{})
	go func() {
		hub.SaveWorker(ctx)
		close(saverDone)
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.Setup(hub),
	}

	go func() {
		logger.Sugar.Infof("Collaboration server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("HTTP shutdown: %v", err)
	}
	<-saverDone
}
