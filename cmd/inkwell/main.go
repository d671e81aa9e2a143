package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"inkwell/client/internal/app"
	"inkwell/client/internal/collab"
	"inkwell/client/internal/config"
	"inkwell/client/internal/directory"
	"inkwell/client/internal/localstore"
	"inkwell/client/internal/logging"
	"inkwell/client/internal/registry"
	"inkwell/client/internal/session"
	"inkwell/client/internal/snapshot"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	logger := logging.New(cfg.LogLevel)

	store, err := localstore.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	dirClient := directory.NewClient(cfg.APIBaseURL, cfg.AccessToken)
	provider := collab.NewWebsocketProvider(cfg.SyncURL, cfg.AccessToken)
	reg := registry.New(func(key string, instance any) {
		if doc, ok := instance.(*collab.Doc); ok {
			if err := provider.Dispose(doc); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("dispose failed")
			}
		}
	}, cfg.HandleGrace, logger)

	authSignal := session.NewSignal()
	sessions := session.NewController(reg, store, authSignal, logger)
	defer sessions.Close()

	service := app.New(store, dirClient, provider, reg, sessions, snapshot.New(cfg.SnapshotsDir), logger)

	if strings.TrimSpace(cfg.AccessToken) != "" {
		userID, err := sessions.LoginWithToken(ctx, cfg.AccessToken, cfg.JWTSecret)
		if err != nil {
			log.Fatalf("access token rejected: %v", err)
		}
		log.Printf("Signed in as %s", userID)

		if _, err := service.RefreshDirectory(ctx); err != nil {
			log.Printf("WARNING: directory refresh failed (working from local cache): %v", err)
		}
	} else {
		log.Printf("No access token configured, running local-only")
	}

	log.Printf("Inkwell client core ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	reg.ForceReleaseAll()
}
