package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/catalog/httpclient"
	"github.com/sakaguchi/ownerstats/internal/handlers"
	"github.com/sakaguchi/ownerstats/internal/infrastructure/config"
	"github.com/sakaguchi/ownerstats/internal/infrastructure/database"
	"github.com/sakaguchi/ownerstats/internal/infrastructure/metrics"
	"github.com/sakaguchi/ownerstats/internal/repositories/postgres"
	"github.com/sakaguchi/ownerstats/internal/services/ownership"
	"github.com/sakaguchi/ownerstats/pkg/cache"
	"github.com/sakaguchi/ownerstats/pkg/cache/memorycache"
)

const defaultEnv = "dev"

// recorder forwards service metrics to both the in-process collector and the
// Prometheus exporter.
type recorder struct {
	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
}

func (r *recorder) RecordResolution() {
	r.collector.RecordResolution()
	r.exporter.RecordResolution()
}

func (r *recorder) RecordGroupExpansions(n int) {
	r.collector.RecordGroupExpansions(n)
	r.exporter.RecordGroupExpansions(n)
}

func (r *recorder) RecordOwnedFetched(n int) {
	r.collector.RecordOwnedFetched(n)
	r.exporter.RecordOwnedFetched(n)
}

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	// Initialize configuration
	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Metrics
	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector)

	// Catalog source
	readyChecks := make(map[string]handlers.HealthChecker)
	var catalogClient catalog.Client

	switch cfg.Catalog.Source {
	case config.SourcePostgres:
		pg, err := database.NewPostgres(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()

		log.Printf("Connected to database: %s@%s:%d/%s",
			cfg.Database.User,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database)

		catalogClient = postgres.NewEntityRepository(pg.DB)
		readyChecks["database"] = pg.HealthCheck

	case config.SourceRemote:
		var entityCache cache.Cache
		if cfg.Cache.Enabled {
			entityCache, err = memorycache.New(&memorycache.Config{
				MaxSizeBytes:  cfg.Cache.MaxSizeBytes,
				DefaultTTL:    cfg.Cache.TTL,
				EnableMetrics: cfg.Cache.Metrics,
			})
			if err != nil {
				log.Fatalf("Failed to create entity cache: %v", err)
			}
			defer entityCache.Close()
			collector.SetCache(entityCache)
		}

		catalogClient, err = httpclient.New(&httpclient.Config{
			BaseURL:  cfg.Catalog.BaseURL,
			Token:    cfg.Catalog.Token,
			Timeout:  cfg.Catalog.Timeout,
			Cache:    entityCache,
			CacheTTL: cfg.Cache.TTL,
		})
		if err != nil {
			log.Fatalf("Failed to create catalog client: %v", err)
		}
		log.Printf("Using remote catalog at %s", cfg.Catalog.BaseURL)

	default:
		log.Fatalf("Unknown catalog source: %s", cfg.Catalog.Source)
	}

	// Initialize services
	resolver := ownership.NewResolver(catalogClient, cfg.Resolver.MaxConcurrent, nil)
	service := ownership.NewService(resolver, catalogClient, &recorder{collector, exporter}, nil)
	service.SetDefaults(cfg.Aggregate.Kinds, cfg.Aggregate.Limit)

	// HTTP API
	router := handlers.NewRouter(handlers.RouterConfig{
		Ownership:  handlers.NewOwnershipHandler(service, catalogClient, nil),
		Health:     handlers.NewHealthHandler(readyChecks),
		Middleware: []mux.MiddlewareFunc{metrics.Middleware(collector, exporter)},
	})

	apiServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics endpoint on its own port
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Refresh gauge metrics periodically
	stopUpdate := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				exporter.Update()
			case <-stopUpdate:
				return
			}
		}
	}()

	serverErrors := make(chan error, 2)
	go func() {
		log.Printf("HTTP server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		log.Printf("Metrics server listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Initiating graceful shutdown...")

		close(stopUpdate)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		}

		log.Println("Shutdown complete")
	}
}
