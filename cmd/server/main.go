package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/latticecrm/lattice/internal/api"
	"github.com/latticecrm/lattice/internal/campaign"
	"github.com/latticecrm/lattice/internal/config"
	"github.com/latticecrm/lattice/internal/content"
	"github.com/latticecrm/lattice/internal/customer"
	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/gateway"
	"github.com/latticecrm/lattice/internal/ledger"
	"github.com/latticecrm/lattice/internal/pkg/distlock"
	"github.com/latticecrm/lattice/internal/repository/postgres"
	"github.com/latticecrm/lattice/internal/segment"
	"github.com/latticecrm/lattice/internal/tracking"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("PostgreSQL connection established")

	// Redis backs the cross-host dispatch lock. Without it the lock factory
	// falls back to Postgres advisory locks, which is fine for one host.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable (%v), using Postgres advisory locks", err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected at %s", cfg.Redis.Addr)
		}
		cancel()
	} else {
		log.Println("Redis disabled, dispatch locks use Postgres advisory locks")
	}

	compiler := segment.NewCompiler()
	segmentStore := segment.NewStore(db, compiler)
	previewer := segment.NewPreviewer(db, compiler)
	customerStore := customer.NewStore(db)
	ledgerStore := ledger.NewStore(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	accountRepo := postgres.NewEmailAccountRepo(db)

	locks := distlock.NewFactory(redisClient, db, cfg.Dispatch.LockTTL())

	mailerFactory := func(account *domain.EmailAccount) (campaign.Mailer, error) {
		return gateway.New(account, cfg.Tracking.BaseURL, gateway.Options{
			MaxRetries: cfg.Dispatch.MaxRetries,
		})
	}

	dispatcher := campaign.NewDispatcher(campaignRepo, segmentStore, customerStore,
		ledgerStore, locks, mailerFactory, compiler, cfg.Dispatch)
	campaignService := campaign.NewService(campaignRepo, segmentStore, customerStore,
		ledgerStore, accountRepo, compiler, dispatcher)

	var remote content.Generator
	if cfg.Gemini.Enabled && cfg.Gemini.APIKey != "" {
		remote = content.NewGeminiClient(cfg.Gemini)
		log.Printf("Gemini content generation enabled (model %s)", cfg.Gemini.Model)
	} else {
		log.Println("Gemini disabled, content generation uses local templates")
	}
	generator := content.NewComposite(remote, content.NewLocalGenerator())

	trackingHandler := tracking.NewHandler(ledgerStore)

	handlers := api.NewHandlers(segmentStore, previewer, customerStore,
		campaignService, accountRepo, generator, mailerFactory)
	router := api.SetupRoutes(handlers, trackingHandler.Routes(), cfg.CORS.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// In-flight campaign dispatches are cancelled; each one records its
	// remaining recipients as failed before the process exits.
	dispatcher.Shutdown(shutdownCtx)
	log.Println("Server stopped")
}
