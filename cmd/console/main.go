package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broadcast-console/internal/api"
	"broadcast-console/internal/backend"
	"broadcast-console/internal/config"
	"broadcast-console/internal/coordinator"
	"broadcast-console/internal/database"
	"broadcast-console/internal/logging"
	"broadcast-console/internal/notify"
	"broadcast-console/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	database.InitGorm(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	notifier, err := notify.NewNotifier(cfg.Locale, hub, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load notice catalogs")
	}

	settings := database.NewSettingsStore(database.GormDB)
	history := database.NewHistoryStore(database.GormDB)

	client := backend.NewClient(cfg, settings, log)
	client.OnUnauthorized = func() {
		notifier.Notify(notify.LevelError, notify.SessionExpired, nil)
		hub.Navigate("/admin")
	}

	// one session token per console process
	session := coordinator.NewSession(time.Now())
	coord := coordinator.New(coordinator.Options{
		Session:       session,
		Backend:       client,
		Opener:        hub,
		Notifier:      notifier,
		Events:        hub,
		History:       history,
		Logger:        log,
		HandoffStride: cfg.HandoffStride,
		SearchDelay:   cfg.SearchDebounce,
		SearchLimit:   cfg.SearchLimit,
	})
	defer coord.Close()
	hub.Greeting = func() interface{} { return coord.Snapshot() }

	coord.Start(ctx)
	if err := coord.Stats().StartPolling(cfg.StatsPollSpec); err != nil {
		log.Error().Err(err).Str("spec", cfg.StatsPollSpec).Msg("invalid stats poll schedule")
	}

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-View-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	consoleHandler := api.NewConsoleHandler(coord, history, notifier)
	adminHandler := api.NewAdminHandler(client, notifier)

	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	consoleHandler.Register(apiGroup)
	adminHandler.Register(apiGroup.Group("/admin"))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("api", cfg.APIBaseURL).
		Str("session", session.String()).
		Msg("console starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("failed to run server")
	}
}
