package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"accesslynx/internal/accesslog"
	"accesslynx/internal/api"
	"accesslynx/internal/api/handlers"
	"accesslynx/internal/api/middleware"
	"accesslynx/internal/banner"
	"accesslynx/internal/clientip"
	"accesslynx/internal/config"
	"accesslynx/internal/database"
	"accesslynx/internal/database/repositories"
	"accesslynx/internal/enrichment"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

func main() {
	// Start at INFO, reconfigured once LOG_LEVEL is known
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	banner.Print()

	logger.Info("Initializing AccessLynx...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithCaller().Fatal("Failed to load configuration", logger.Args("error", err))
	}

	lvl := strings.ToLower(cfg.LogLevel)
	logger = pterm.DefaultLogger.WithLevel(parseLogLevel(lvl))
	logger.Debug("Log level set", logger.Args("level", lvl))

	logger.Debug("Configuration loaded",
		logger.Args(
			"access_log", cfg.AccessLog.Path,
			"server_port", cfg.Server.Port,
			"geo_provider", cfg.Geo.Provider,
			"geo_cache", cfg.Geo.CacheEnabled,
		))

	// Geolocation provider
	var geoResolver enrichment.GeolocationResolver
	var maxmind *enrichment.MaxMindResolver
	switch cfg.Geo.Provider {
	case "maxmind":
		maxmind, err = enrichment.NewMaxMindResolver(cfg.Geo.CityDBPath, logger)
		if err != nil {
			logger.Warn("GeoIP database unavailable, continuing without geolocation", logger.Args("error", err))
		} else {
			geoResolver = maxmind
		}
	case "ipinfo":
		geoResolver = enrichment.NewIPInfoResolver(cfg.Geo.IPInfoURL, cfg.Geo.IPInfoToken, cfg.Geo.LookupTimeout)
	case "none", "":
		logger.Info("Geolocation disabled by configuration")
	default:
		logger.Warn("Unknown geolocation provider, geolocation disabled", logger.Args("provider", cfg.Geo.Provider))
	}

	// Optional sqlite cache in front of the provider
	var db *gorm.DB
	var cleanupService *database.CleanupService
	var poolMonitor *database.PoolMonitor
	if geoResolver != nil && cfg.Geo.CacheEnabled {
		db, err = database.NewConnection(&database.Config{
			Path:         cfg.Database.Path,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			ConnMaxLife:  cfg.Database.ConnMaxLife,
		}, logger)
		if err != nil {
			logger.Warn("Geolocation cache unavailable, continuing uncached", logger.Args("error", err))
		} else {
			geoRepo := repositories.NewGeoCacheRepository(db, logger)
			geoResolver = enrichment.NewCachedResolver(geoResolver, geoRepo, cfg.Geo.CacheTTL, logger)

			cleanupService = database.NewCleanupService(geoRepo, logger, cfg.Geo.CacheTTL, cfg.Database.CleanupInterval)
			cleanupService.Start()

			if sqlDB, err := db.DB(); err == nil {
				poolMonitor = database.NewPoolMonitor(sqlDB, logger, time.Minute, 0.8)
				poolMonitor.Start(context.Background())
			}
		}
	}

	if geoResolver != nil {
		logger.Info("Geolocation enabled", logger.Args("provider", geoResolver.Name()))
	}

	var publicIP clientip.PublicIPResolver
	if cfg.ClientIP.PublicIPURL != "" {
		publicIP = clientip.NewHTTPPublicIPResolver(cfg.ClientIP.PublicIPURL, cfg.ClientIP.LookupTimeout)
	}
	resolver := clientip.NewResolver(&clientip.Config{
		ForwardedHeader: cfg.ClientIP.ForwardedHeader,
		PrivatePrefixes: cfg.ClientIP.PrivatePrefixes,
	}, publicIP, logger)
	geoEnricher := enrichment.NewGeoEnricher(geoResolver, cfg.Geo.LookupTimeout, logger)

	// Access log sink
	writer, err := accesslog.NewFileWriter(cfg.AccessLog.Path)
	if err != nil {
		logger.WithCaller().Fatal("Failed to open access log", logger.Args("error", err))
	}
	emitter := accesslog.NewEmitter(writer, cfg.AccessLog.QueueSize, logger)

	logger.Info("Initializing web server...")
	webServer := api.NewServer(&api.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Production: cfg.Server.Production,
	},
		middleware.AccessLog(resolver, geoEnricher, emitter, logger),
		handlers.NewLogsHandler(cfg.AccessLog.Path, logger),
		handlers.NewStreamHandler(cfg.AccessLog.Path, time.Second, logger),
		logger,
	)

	go func() {
		if err := webServer.Run(); err != nil {
			logger.WithCaller().Error("Web server error", logger.Args("error", err))
		}
	}()

	logger.Info("AccessLynx is running",
		logger.Args(
			"url", pterm.Sprintf("http://localhost:%d", cfg.Server.Port),
			"access_log", writer.Path(),
		))

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info("Shutdown signal received, stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first so every in-flight record reaches the emitter
	logger.Debug("Stopping web server...")
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithCaller().Error("Web server shutdown error", logger.Args("error", err))
	} else {
		logger.Info("Web server stopped successfully")
	}

	logger.Debug("Draining access log emitter...")
	emitter.Close()
	if err := writer.Close(); err != nil {
		logger.WithCaller().Error("Failed to close access log", logger.Args("error", err))
	}

	if cleanupService != nil {
		cleanupService.Stop()
	}
	if poolMonitor != nil {
		poolMonitor.Stop()
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			logger.Warn("Failed to close database", logger.Args("error", err))
		}
	}
	if maxmind != nil {
		maxmind.Close()
	}

	stats := emitter.Stats()
	logger.Info("AccessLynx stopped gracefully",
		logger.Args("records_written", stats.Written, "records_failed", stats.Failed))
}

// parseLogLevel maps LOG_LEVEL (trace, debug, info, warn, error, fatal) to pterm
func parseLogLevel(level string) pterm.LogLevel {
	switch level {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "info":
		return pterm.LogLevelInfo
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "fatal":
		return pterm.LogLevelFatal
	default:
		return pterm.LogLevelInfo
	}
}
