package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scalebridge/internal/camera"
	"scalebridge/internal/config"
	"scalebridge/internal/device"
	"scalebridge/internal/eventlog"
	"scalebridge/internal/handlers"
	"scalebridge/internal/logger"
	"scalebridge/internal/relay"
	"scalebridge/internal/repository"
	"scalebridge/internal/repository/db"
	"scalebridge/internal/server"
	"scalebridge/internal/service"
	"scalebridge/internal/telemetry"
)

const (
	defaultConfigPath = "config/scalebridge.json"
	shutdownGrace     = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the JSON config file")
	flag.Parse()

	log := logger.Get(logger.InfoLevel)

	store, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("error reading config", "path", *configPath, "err", err)
	}
	cfg := store.Current()
	logger.SetLevel(cfg.LogLevel)
	log.Infow("config_loaded", "path", store.Path(), "simulated", cfg.Simulation.Enabled)

	// open DB; capture history degrades to disabled when it cannot be opened
	conn, err := db.InitDB(cfg.History.DBPath)
	if err != nil {
		log.Errorw("history_db_unavailable", "path", cfg.History.DBPath, "err", err)
	}
	var repos *repository.Repository
	if conn != nil {
		repos = repository.NewRepository(conn)
	}

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readings := telemetry.NewStore()
	events := eventlog.New(cfg.Device.Logging, log.Named("eventlog"))
	events.Prune()
	session := newSession(cfg, readings, events, log)

	cam := camera.NewFFmpegProvider(cfg.Camera, log.Named("camera"))
	httpRelay := relay.NewHTTPClient(cfg.Backend)
	pushers := relay.NewMulti(log.Named("relay")).Add("http", httpRelay)
	mqttRelay := relay.NewMQTTPublisher(cfg.MQTT)
	if mqttRelay != nil {
		pushers.Add("mqtt", mqttRelay)
	}
	pingBackend(ctx, httpRelay, log)

	applyConfig := func(c config.Config) {
		logger.SetLevel(c.LogLevel)
		events.SetConfig(c.Device.Logging)
		cam.SetConfig(c.Camera)
		httpRelay.SetConfig(c.Backend)
	}
	services := service.NewService(service.Deps{
		Session:        session,
		Camera:         cam,
		Events:         events,
		Repos:          repos,
		Relay:          pushers,
		Config:         store,
		Log:            log,
		OnConfigChange: []func(config.Config){applyConfig},
	})
	apiHandler := handlers.NewHandler(services, log).ServePhotos(cfg.Camera.BaseURL, cfg.Camera.PhotoDir)

	session.Open(ctx)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)

	session.Disconnect()
	services.Wait()
	mqttRelay.Close()
	events.Close()
	closeDB(conn, log)
	log.Infow("stopped")
}

func newSession(cfg config.Config, readings *telemetry.Store, events *eventlog.Logger, log *logger.Logger) device.Session {
	if cfg.Simulation.Enabled {
		log.Infow("simulation_enabled")
		return device.NewSimulator(cfg.Device, readings, log.Named("simulator"))
	}
	return device.NewSerialSession(cfg.Device, readings, events, log.Named("serial"))
}

func pingBackend(ctx context.Context, c *relay.HTTPClient, log *logger.Logger) {
	if !c.Configured() {
		log.Infow("relay_disabled", "reason", "backend url or api key not set")
		return
	}
	go func() {
		if err := c.Ping(ctx); err != nil {
			log.Warnw("backend_unreachable", "err", err)
			return
		}
		log.Infow("backend_reachable")
	}()
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and stops the HTTP server.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}

func closeDB(conn *sql.DB, log *logger.Logger) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}
