// Command eqlproxy runs the proxy: a transparent PostgreSQL wire-protocol
// proxy that rewrites SQL and row payloads for columns declared
// "encrypted" in a schema mapping, carrying them to the real server as
// EQL ciphertext (§1, §2).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudshield/eqlproxy/internal/api"
	"github.com/cloudshield/eqlproxy/internal/config"
	"github.com/cloudshield/eqlproxy/internal/cryptor"
	"github.com/cloudshield/eqlproxy/internal/health"
	"github.com/cloudshield/eqlproxy/internal/metrics"
	"github.com/cloudshield/eqlproxy/internal/pgproxy"
	"github.com/cloudshield/eqlproxy/internal/schema"
)

func main() {
	configPath := flag.String("config", "configs/eqlproxy.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("eqlproxy starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	tables, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}
	reg := schema.NewWithTables(tables)
	log.Printf("Schema loaded from %s (%d tables)", cfg.Schema.Path, len(tables))

	m := metrics.New()

	cryptorClient := cryptor.NewHTTPClient(cryptor.Config{
		Endpoint:      cfg.Cryptor.Endpoint,
		DefaultKeyset: cfg.Cryptor.DefaultKeyset,
	}, cfg.Upstream.DialTimeout)

	hc := health.NewChecker(
		upstreamAddr(cfg),
		m,
		cfg.HealthCheck.Interval,
		cfg.HealthCheck.FailureThreshold,
		cfg.HealthCheck.ConnectionTimeout,
	)
	hc.Start()

	handler := &pgproxy.Handler{
		UpstreamAddr:              upstreamAddr(cfg),
		UpstreamTLS:               cfg.Upstream.RequireTLS,
		UpstreamServerName:        cfg.Upstream.Host,
		DialTimeout:               cfg.Upstream.DialTimeout,
		Schema:                    reg,
		Cryptor:                   cryptorClient,
		Metrics:                   m,
		DefaultKeyset:             cfg.Cryptor.DefaultKeyset,
		AllowClientKeysetOverride: cfg.Cryptor.AllowClientKeysetOverride,
	}

	proxyServer := pgproxy.NewServer(handler, cfg.Listen.TLSCert, cfg.Listen.TLSKey)
	if err := proxyServer.Listen(cfg.Listen.PostgresPort); err != nil {
		log.Fatalf("Failed to start PostgreSQL proxy: %v", err)
	}

	apiServer := api.NewServer(reg, cfg.Schema.Path, hc, m, handler, cfg.Listen)
	if err := apiServer.Start(cfg.Listen.APIPort); err != nil {
		log.Fatalf("Failed to start admin API: %v", err)
	}

	var schemaWatcher *schema.Watcher
	if cfg.Schema.WatchInterval > 0 {
		schemaWatcher, err = schema.NewWatcher(cfg.Schema.Path, reg, func(err error) {
			log.Printf("schema reload failed: %v", err)
			m.SchemaReloaded(false)
		})
		if err != nil {
			log.Printf("Warning: schema hot-reload not available: %v", err)
		}
	}

	log.Printf("eqlproxy ready - PG:%d API:%d upstream:%s", cfg.Listen.PostgresPort, cfg.Listen.APIPort, upstreamAddr(cfg))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %s, shutting down...", sig)

	if schemaWatcher != nil {
		schemaWatcher.Stop()
	}
	apiServer.Stop()
	proxyServer.Stop()
	hc.Stop()

	log.Printf("eqlproxy stopped")
}

func upstreamAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Upstream.Host, cfg.Upstream.Port)
}
