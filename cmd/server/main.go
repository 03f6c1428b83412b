package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coopa/backend/docs"
	"github.com/coopa/backend/internal/audit"
	"github.com/coopa/backend/internal/config"
	"github.com/coopa/backend/internal/database"
	"github.com/coopa/backend/internal/events"
	"github.com/coopa/backend/internal/handlers"
	mW "github.com/coopa/backend/internal/middleware"
	"github.com/coopa/backend/internal/moniepoint"
	"github.com/coopa/backend/internal/ratelimit"
	"github.com/coopa/backend/internal/repository"
	"github.com/coopa/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Coopa Escrow API
// @version 1.0
// @description Cooperative purchase escrow backed by Moniepoint virtual accounts
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("firebase.credentials_file", "FIREBASE_CREDENTIALS_FILE")
	viper.BindEnv("store.backend", "STORE_BACKEND")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")

	viper.SetDefault("store.backend", "postgres")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "localhost:8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	escrowCfg := config.LoadEscrowConfig()
	rateCfg := config.LoadRateLimitConfig()
	mpCfg := config.LoadMoniepointConfig()

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = viper.GetString("server.host")
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Persistence
	var db *sql.DB
	if viper.GetString("store.backend") != "memory" {
		db = database.InitDatabase()
		if db != nil {
			defer db.Close()
		}
	}
	store := openStore(viper.GetString("store.backend"), db)

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}
	limiter := newLimiter(redisClient, rateCfg)

	publisher := newPublisher(escrowCfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Failed to close event publisher: %v", err)
		}
	}()

	gateway := moniepoint.NewClient(moniepoint.Config{
		BaseURL: mpCfg.BaseURL,
		APIKey:  mpCfg.APIKey,
		Timeout: mpCfg.Timeout,
	})
	if !gateway.Configured() {
		log.Println("[MONIEPOINT] MONIEPOINT_API_KEY not set, gateway endpoints answer 503")
	}
	if mpCfg.WebhookSecret == "" {
		log.Println("[WEBHOOK] MONIEPOINT_WEBHOOK_SECRET not set, webhook answers 503")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier := newVerifier(ctx)

	// Services; nil when the store is unavailable so handlers answer 503.
	var (
		users          repository.UserRepository
		escrowService  *services.EscrowService
		webhookService *services.WebhookService
		coopService    *services.CooperativeService
		requestService *services.RequestService
	)
	if store != nil {
		users = store
		escrowService = services.NewEscrowService(store, gateway, publisher, audit.NewAuditLogger(), escrowCfg)
		webhookService = services.NewWebhookService(escrowService, mpCfg.WebhookSecret)
		coopService = services.NewCooperativeService(store)
		requestService = services.NewRequestService(store)

		go escrowService.RunDeadlineSweep(ctx, escrowCfg.SweepInterval)
	}

	escrowHandler := handlers.NewEscrowHandler(escrowService, users, services.NewPaymentQRService(), services.NewSettlementAdviceService(escrowCfg.Currency))
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	coopHandler := handlers.NewCooperativeHandler(coopService, users)
	requestHandler := handlers.NewRequestHandler(requestService)
	moniepointHandler := handlers.NewMoniepointHandler(services.NewMoniepointService(gateway))
	bankHandler := handlers.NewBankHandler(services.NewBankDirectory())

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Moniepoint-Signature"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	health := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "healthy",
			"database": store != nil,
			"redis":    redisClient != nil,
			"gateway":  gateway.Configured(),
		})
	}
	r.Get("/health", health)

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health)
		r.Get("/banks", bankHandler.List)

		// Signed by the gateway, no bearer token
		r.Post("/webhooks/moniepoint", webhookHandler.Moniepoint)

		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(verifier))

			r.Post("/payment-escrow/create", escrowHandler.Create)
			r.Post("/payment-escrow/approve-group", escrowHandler.ApproveGroup)
			r.Post("/payment-escrow/approve-platform", escrowHandler.ApprovePlatform)
			r.Post("/payment-escrow/refund", escrowHandler.Refund)
			r.Get("/payment-escrow/{id}", escrowHandler.Get)
			r.Get("/payment-escrow/{id}/qr", escrowHandler.PaymentQR)
			r.Get("/payment-escrow/{id}/settlement-advice", escrowHandler.SettlementAdvice)

			r.With(mW.RateLimit(limiter, rateCfg.Requests)).Post("/requests", requestHandler.Single)
			r.With(mW.RateLimit(limiter, rateCfg.BulkRequests)).Post("/bulk-requests", requestHandler.Bulk)

			r.With(mW.RateLimit(limiter, rateCfg.CoopRegister)).Post("/cooperatives/register", coopHandler.Register)
			r.Get("/cooperatives/pending", coopHandler.Pending)
			r.Post("/cooperatives/approve", coopHandler.Approve)

			r.Post("/moniepoint/create-virtual-account", moniepointHandler.CreateVirtualAccount)
			r.Post("/moniepoint/check-balance", moniepointHandler.CheckBalance)
		})
	})

	port := viper.GetString("server.port")

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// openStore picks the repository backend. A nil result leaves the
// persistence-backed endpoints answering 503.
func openStore(backend string, db *sql.DB) repository.Store {
	switch {
	case backend == "memory":
		log.Println("[DB] Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore()
	case db != nil:
		return repository.NewPostgresStore(db)
	}
	return nil
}

func newLimiter(client *redis.Client, cfg *config.RateLimitConfig) ratelimit.Limiter {
	memory := ratelimit.NewMemoryLimiter()
	if client == nil {
		return memory
	}
	return ratelimit.NewRedisLimiter(client, cfg.KeyPrefix, memory)
}

func newPublisher(cfg *config.EscrowConfig) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Println("[EVENT] KAFKA_BROKERS not set, events are logged only")
		return events.LogPublisher{}
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
	if err != nil {
		log.Printf("[EVENT] Kafka publisher unavailable, events are logged only: %v", err)
		return events.LogPublisher{}
	}
	return p
}

// newVerifier prefers Firebase when a service account is configured and
// falls back to HS256 tokens. A nil verifier makes Auth answer 503.
func newVerifier(ctx context.Context) mW.TokenVerifier {
	if file := viper.GetString("firebase.credentials_file"); file != "" {
		fv, err := mW.NewFirebaseVerifier(ctx, file)
		if err == nil {
			log.Println("[AUTH] Verifying Firebase ID tokens")
			return fv
		}
		log.Printf("[AUTH] Firebase unavailable, trying JWT: %v", err)
	}
	if jv := mW.NewJWTVerifier(viper.GetString("jwt.secret_key")); jv != nil {
		return jv
	}
	log.Println("[AUTH] No token verifier configured, protected endpoints answer 503")
	return nil
}

func allowedOrigins() []string {
	raw := viper.GetString("cors.allowed_origins")
	if raw == "" {
		return []string{"https://*", "http://*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
