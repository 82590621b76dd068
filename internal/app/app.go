// Package app wires configuration, storage, upstream access, and the admin
// API into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/channelsync"
	"github.com/router-for-me/ChannelHub/internal/config"
	"github.com/router-for-me/ChannelHub/internal/db"
	adminapi "github.com/router-for-me/ChannelHub/internal/http/api/admin"
	"github.com/router-for-me/ChannelHub/internal/mapping"
	"github.com/router-for-me/ChannelHub/internal/scheduler"
	"github.com/router-for-me/ChannelHub/internal/settings"
	"github.com/router-for-me/ChannelHub/internal/upstream"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the sync engine and the admin API server.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if errSeed := EnsureAdminFromEnv(conn); errSeed != nil {
		return errSeed
	}

	settingsStore := settings.NewStore(conn)
	if errReload := settingsStore.Reload(ctx); errReload != nil {
		return errReload
	}

	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}

	// A missing upstream endpoint degrades to a management-only server:
	// settings and stored results stay reachable, syncs report the
	// configuration error.
	var channelAPI channelsync.ChannelAPI
	upstreamCfg, errUpstream := config.LoadUpstreamConfig(configPath)
	switch {
	case errUpstream == nil:
		client, errClient := upstream.NewClient(upstreamCfg)
		if errClient != nil {
			return errClient
		}
		channelAPI = client
	case errors.Is(errUpstream, config.ErrMissingUpstream):
		log.Warn("upstream endpoint not configured, channel sync disabled")
	default:
		return errUpstream
	}

	syncService := channelsync.NewService(conn, channelAPI, settingsStore)
	mappingService := mapping.NewService(conn, syncService, settingsStore)
	sched := scheduler.New(syncService, settingsStore, scheduler.NewTickerAlarm())
	sched.SetupAlarm()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	adminapi.RegisterAdminRoutes(engine, conn, jwtConfig, adminapi.Services{
		Sync:      syncService,
		Mapping:   mappingService,
		Scheduler: sched,
		Settings:  settingsStore,
	})

	port := defaultPort
	if port <= 0 {
		port = 8318
	}
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting server on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// corsMiddleware enables permissive CORS for the admin UI.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
