package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/itemlink/backend/docs"
	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/database"
	"github.com/itemlink/backend/internal/gateway"
	"github.com/itemlink/backend/internal/handlers"
	mW "github.com/itemlink/backend/internal/middleware"
	"github.com/itemlink/backend/internal/scheduler"
	"github.com/itemlink/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title ItemLink Wallet API
// @version 1.0
// @description Mileage wallet backend: deposits, bank reconciliation, withdrawals
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

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
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("gateway.bankda_url", "BANKDA_URL")
	viper.BindEnv("gateway.bankda_token", "BANKDA_TOKEN")
	viper.BindEnv("gateway.bankda_account", "BANKDA_ACCOUNT")
	viper.BindEnv("gateway.payaction_url", "PAYACTION_URL")
	viper.BindEnv("gateway.payaction_api_key", "PAYACTION_API_KEY")
	viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	viper.BindEnv("webhook.require_signature", "WEBHOOK_REQUIRE_SIGNATURE")
	viper.BindEnv("scheduler.interval", "SCHEDULER_INTERVAL")
	viper.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	viper.BindEnv("wallet.min_deposit_amount", "WALLET_MIN_DEPOSIT_AMOUNT")
	viper.BindEnv("wallet.max_deposit_amount", "WALLET_MAX_DEPOSIT_AMOUNT")
	viper.BindEnv("wallet.bank_account", "WALLET_BANK_ACCOUNT")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "ItemLink Wallet API"
	docs.SwaggerInfo.Description = "Mileage wallet backend: deposits, bank reconciliation, withdrawals"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Load configs
	walletCfg := config.LoadWalletConfig()
	gatewayCfg := config.LoadGatewayConfig()
	webhookCfg := config.LoadWebhookConfig()
	schedulerCfg := config.LoadSchedulerConfig()

	// External providers
	bankClient := gateway.NewBankdaClient(gatewayCfg)
	orderClient := gateway.NewPayActionClient(gatewayCfg)

	// Services
	ledgerService := services.NewLedgerService(db)
	depositService := services.NewDepositService(db, ledgerService, orderClient, walletCfg)
	reconcileService := services.NewReconcileService(depositService, bankClient, walletCfg)
	webhookService := services.NewWebhookService(depositService, webhookCfg)
	walletService := services.NewWalletService(ledgerService, walletCfg)
	authService := services.NewAuthService(db, redisClient)
	qrService := services.NewQRService(db, redisClient, walletCfg)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Fallback reconciliation loop for missed webhooks
	sched := scheduler.New(reconcileService, schedulerCfg)
	sched.Start()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Webhook-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Gateway push notifications
		r.Post("/webhooks/payaction", webhookService.HandlePayAction)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			r.Get("/wallet/balance", walletService.GetBalance)
			r.Get("/wallet/transactions", walletService.ListTransactions)
			r.Post("/wallet/withdrawals", walletService.Withdraw)

			r.Post("/wallet/deposits", depositService.CreateDeposit)
			r.Get("/wallet/deposits", depositService.ListMyDeposits)
			r.Get("/wallet/deposits/{depositId}", depositService.GetDeposit)
			r.Get("/wallet/deposits/{depositId}/qr", qrHandler.DepositQR)

			// Admin moderation
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Get("/admin/deposits", depositService.ListPendingDeposits)
				r.Post("/admin/deposits/{depositId}/approve", depositService.ApproveDeposit)
				r.Post("/admin/deposits/{depositId}/reject", depositService.RejectDeposit)
				r.Post("/admin/reconcile", reconcileService.RunReconciliation)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
