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
	"github.com/spf13/viper"

	"github.com/odontoclin/backend/internal/asaas"
	"github.com/odontoclin/backend/internal/database"
	"github.com/odontoclin/backend/internal/handlers"
	mW "github.com/odontoclin/backend/internal/middleware"
	"github.com/odontoclin/backend/internal/models"
	"github.com/odontoclin/backend/internal/services"
	"github.com/odontoclin/backend/internal/whatsapp"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

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

	viper.BindEnv("whatsapp.bridge_url", "WHATSAPP_BRIDGE_URL")
	viper.BindEnv("asaas.base_url", "ASAAS_BASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	viper.SetDefault("whatsapp.bridge_url", "http://localhost:3001")
	messenger := whatsapp.NewClient(viper.GetString("whatsapp.bridge_url"))

	settingsService := services.NewSettingsService(db)
	payments := asaas.NewClient(viper.GetString("asaas.base_url"), func() (string, error) {
		return settingsService.Value(models.SettingAsaasKey)
	})

	registerService := services.NewCashRegisterService(db, messenger, settingsService)
	transactionService := services.NewTransactionService(db, registerService)
	patientService := services.NewPatientService(db, payments)
	professionalService := services.NewProfessionalService(db)
	appointmentService := services.NewAppointmentService(db, professionalService)
	assistantService := services.NewAssistantService(db, redisClient)
	whatsappHandler := handlers.NewWhatsAppHandler(messenger)
	invoiceHandler := handlers.NewInvoiceHandler(payments, patientService, messenger, settingsService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

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
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/login", assistantService.Login)
		r.Post("/auth/logout", assistantService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Cash register lifecycle
			r.Post("/registers", registerService.Open)
			r.Get("/registers", registerService.List)
			r.Get("/registers/last-open", registerService.GetLastOpen)
			r.Get("/registers/{id}", registerService.Get)
			r.Put("/registers/{id}", registerService.Update)
			r.Post("/registers/{id}/close", registerService.Close)
			r.Delete("/registers/{id}", registerService.Delete)

			// Transactions
			r.Post("/transactions", transactionService.Create)
			r.Get("/transactions", transactionService.List)
			r.Get("/transactions/{id}", transactionService.Get)
			r.Put("/transactions/{id}", transactionService.Update)
			r.Delete("/transactions/{id}", transactionService.Delete)

			// Patients
			r.Post("/patients", patientService.Register)
			r.Get("/patients", patientService.List)
			r.Get("/patients/{id}", patientService.Get)
			r.Put("/patients/{id}", patientService.Update)
			r.Delete("/patients/{id}", patientService.Delete)

			// Professionals
			r.Post("/professionals", professionalService.Create)
			r.Get("/professionals", professionalService.List)
			r.Get("/professionals/{id}", professionalService.Get)
			r.Put("/professionals/{id}", professionalService.Update)
			r.Delete("/professionals/{id}", professionalService.Delete)
			r.Get("/professionals/{id}/slots", appointmentService.Slots)
			r.Get("/professionals/{id}/transactions", transactionService.ListByProfessional)
			r.Get("/professionals/{id}/transactions/total", transactionService.TotalByProfessional)

			// Appointments
			r.Post("/appointments", appointmentService.Create)
			r.Get("/appointments", appointmentService.List)
			r.Get("/appointments/upcoming", appointmentService.ListUpcoming)
			r.Get("/appointments/{id}", appointmentService.Get)
			r.Put("/appointments/{id}", appointmentService.Update)
			r.Delete("/appointments/{id}", appointmentService.Delete)

			// Assistants
			r.Post("/assistants", assistantService.Create)
			r.Get("/assistants", assistantService.List)
			r.Put("/assistants/{id}", assistantService.Update)
			r.Delete("/assistants/{id}", assistantService.Delete)

			// Settings
			r.Get("/settings/{name}", settingsService.Get)
			r.Put("/settings/{name}", settingsService.Update)

			// WhatsApp session
			r.Get("/whatsapp/qr", whatsappHandler.QRStatus)
			r.Post("/whatsapp/send", whatsappHandler.SendMessage)
			r.Post("/whatsapp/disconnect", whatsappHandler.Disconnect)

			// Invoices (boletos)
			r.Post("/invoices", invoiceHandler.Generate)
			r.Get("/invoices", invoiceHandler.List)
			r.Delete("/invoices/{id}", invoiceHandler.Delete)
			r.Post("/invoices/{id}/send", invoiceHandler.SendCharge)
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
