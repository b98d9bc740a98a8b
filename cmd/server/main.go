package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"gymbill/internal/handlers"
	"gymbill/internal/middleware"
	"gymbill/internal/services"
	"gymbill/internal/tasks"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	if err := services.SeedAdminUser(db, os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	// Make sure the daily expiry reminder job exists
	if err := tasks.ExpiryReminderTask.EnsureScheduled(db); err != nil {
		log.Printf("Warning: failed to schedule expiry reminders: %v", err)
	}

	// Redis is optional; aggregates fall back to direct queries without it
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, caching disabled: %v", err)
			cache = nil
		}
	}

	mailer := services.NewEmailService()
	membership := services.NewMembershipService(db)
	invoiceService := services.NewInvoiceService(db, mailer, membership)
	gateway := services.NewRazorpayService(db)
	analytics := services.NewAnalyticsService(db, cache, invoiceService)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	authHandler := handlers.NewAuthHandler(db, jwtSecret)
	memberHandler := handlers.NewMemberHandler(db, membership)
	planHandler := handlers.NewPlanHandler(db)
	invoiceHandler := handlers.NewInvoiceHandler(db, invoiceService)
	paymentHandler := handlers.NewPaymentHandler(db, gateway, invoiceService)
	analyticsHandler := handlers.NewAnalyticsHandler(analytics)
	settingsHandler := handlers.NewSettingsHandler(db)

	api := e.Group("/api")

	// Public routes
	api.POST("/auth/login", authHandler.Login)
	// Gateway callback: trusted via signature verification, not a session
	api.POST("/payments/verify", paymentHandler.VerifyPayment)

	// Protected routes
	protected := api.Group("", middleware.RequireAuth(jwtSecret))

	protected.GET("/members", memberHandler.List)
	protected.GET("/members/expiring", memberHandler.Expiring)
	protected.GET("/members/:id", memberHandler.Get)
	protected.POST("/members", memberHandler.Create)
	protected.PUT("/members/:id", memberHandler.Update)
	protected.DELETE("/members/:id", memberHandler.Delete)

	protected.GET("/plans", planHandler.List)
	protected.POST("/plans", planHandler.Create)
	protected.PUT("/plans/:id", planHandler.Update)
	protected.DELETE("/plans/:id", planHandler.Delete)

	protected.GET("/invoices", invoiceHandler.List)
	protected.GET("/invoices/overdue", invoiceHandler.Overdue)
	protected.GET("/invoices/:id", invoiceHandler.Get)
	protected.POST("/invoices", invoiceHandler.Create)
	protected.PUT("/invoices/:id", invoiceHandler.Update)
	protected.POST("/invoices/:id/pay", invoiceHandler.MarkPaid)
	protected.DELETE("/invoices/:id", invoiceHandler.Delete)

	protected.POST("/payments/create", paymentHandler.CreateOrder)
	protected.GET("/payments/status", paymentHandler.OrderStatus)

	protected.GET("/analytics/dashboard", analyticsHandler.Dashboard)
	protected.GET("/analytics/export/csv", analyticsHandler.ExportCSV)

	protected.GET("/settings", settingsHandler.List)
	protected.PUT("/settings", settingsHandler.Upsert)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
