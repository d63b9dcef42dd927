package main

import (
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/splitfolio/backend/src/config"
	"github.com/username/splitfolio/backend/src/database"
	"github.com/username/splitfolio/backend/src/handlers"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/security"
	"github.com/username/splitfolio/backend/src/services"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Splitfolio backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	summaryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)

	entryService := services.NewEntryService(database.DB, summaryCache)
	confirmationService := services.NewConfirmationService(database.DB, entryService)
	groupService := services.NewGroupService(database.DB, entryService)
	balanceService := services.NewBalanceService(database.DB, entryService)

	purgeWorker := services.NewRequestPurgeWorker(database.DB, config.Cfg.RequestRetention, config.Cfg.RequestPurgeInterval)
	purgeWorker.Start()

	userHandler := handlers.NewUserHandler(authService)
	entryHandler := handlers.NewEntryHandler(entryService, confirmationService)
	requestHandler := handlers.NewRequestHandler(confirmationService)
	groupHandler := handlers.NewGroupHandler(groupService)
	settlementHandler := handlers.NewSettlementHandler(balanceService)
	contactHandler := handlers.NewContactHandler()

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Splitfolio Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Get("/auth/csrf", handlers.GetCSRFToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Post("/auth/login", userHandler.LoginUserHandler)
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/refresh", userHandler.RefreshTokenHandler)
			r.With(userHandler.AuthMiddleware).Post("/auth/logout", userHandler.LogoutUserHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Use(userHandler.AuthMiddleware)

			r.Get("/user/me", userHandler.MeHandler)
			r.Get("/user/has-data", userHandler.HandleCheckUserData)
			r.Post("/user/change-password", userHandler.ChangePasswordHandler)
			r.Delete("/user/account", userHandler.DeleteAccountHandler)

			r.Get("/entries", entryHandler.HandleListEntries)
			r.Post("/entries", entryHandler.HandleAddEntry)
			r.Delete("/entries/{id}", entryHandler.HandleDeleteEntry)
			r.Get("/entries/analysis", entryHandler.HandleAnalysis)

			r.Get("/requests", requestHandler.HandleListPending)
			r.Post("/requests", requestHandler.HandleCreateRequest)
			r.Post("/requests/{id}/confirm", requestHandler.HandleConfirm)
			r.Post("/requests/{id}/reject", requestHandler.HandleReject)

			r.Get("/groups", groupHandler.HandleListGroups)
			r.Post("/groups", groupHandler.HandleCreateGroup)
			r.Get("/groups/{groupID}", groupHandler.HandleGetGroup)
			r.Post("/groups/{groupID}/members", groupHandler.HandleAddMember)
			r.Get("/groups/{groupID}/expenses", groupHandler.HandleListExpenses)
			r.Post("/groups/{groupID}/expenses", groupHandler.HandleAddExpense)
			r.Get("/groups/{groupID}/tally", groupHandler.HandleTally)
			r.Post("/groups/{groupID}/settlements", settlementHandler.HandleCreateSettlement)

			r.Get("/balances", settlementHandler.HandleGetBalances)
			r.Get("/settlements", settlementHandler.HandleSettlementHistory)

			r.Get("/contacts", contactHandler.HandleListContacts)
			r.Post("/contacts", contactHandler.HandleCreateContact)
			r.Delete("/contacts/{id}", contactHandler.HandleDeleteContact)
			r.Get("/contact-links", contactHandler.HandleListContactLinks)
			r.Post("/contact-links", contactHandler.HandleUpsertContactLink)
			r.Delete("/contact-links/{id}", contactHandler.HandleDeleteContactLink)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.L.Info("Shutdown signal received")
		purgeWorker.Stop()
		server.Close()
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
