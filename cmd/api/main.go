package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/background"
	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/handlers"
	"github.com/marenbeck/gatehouse/internal/mail"
	"github.com/marenbeck/gatehouse/internal/methods"
	middlewareCustom "github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/orchestrator"
	"github.com/marenbeck/gatehouse/internal/repositories"
	"github.com/marenbeck/gatehouse/internal/routes"
	"github.com/marenbeck/gatehouse/internal/services"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/internal/social"
	"github.com/marenbeck/gatehouse/internal/twofactor"
	pkgauth "github.com/marenbeck/gatehouse/pkg/auth"
	pkglogger "github.com/marenbeck/gatehouse/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis-backed session store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	sessions := session.NewRedisStore(redisClient, cfg.Auth.SessionTTL)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	profileRepo := repositories.NewAuthProfileRepository(db)
	codeRepo := repositories.NewEphemeralCodeRepository(db)
	socialRepo := repositories.NewSocialAccountRepository(db)
	passkeyRepo := repositories.NewPasskeyRepository(db)
	tokenRepo := repositories.NewAPITokenRepository(db)

	// Security primitives
	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewBcryptHasher()
	challengeTokens := auth.NewChallengeTokenManager(cfg.Auth.ChallengeSecret, cfg.Auth.ChallengeTTL)
	apiTokens := auth.NewAPITokenManager()

	encryptionKey, err := hex.DecodeString(cfg.Auth.SecretKey)
	if err != nil {
		logger.Error("invalid SECRET_KEY", slog.Any("error", err))
		os.Exit(1)
	}
	totpManager, err := auth.NewTOTPManager(encryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}
	webauthnManager, err := auth.NewWebAuthnManager(cfg.WebAuthn)
	if err != nil {
		logger.Error("failed to initialize WebAuthn", slog.Any("error", err))
		os.Exit(1)
	}

	// AWS SES mailer and SMS sender
	mailer, err := mail.NewSESMailer(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}
	smsSender := mail.NewLogSMSSender(logger)

	// Second-factor drivers and enrollment manager
	driverRegistry := twofactor.NewRegistry(
		twofactor.NewTOTPDriver(totpManager, profileRepo),
		twofactor.NewEmailDriver(codeRepo, profileRepo, mailer, cfg.Auth.TwoFactorOTPExpiry),
		twofactor.NewSMSDriver(codeRepo, profileRepo, smsSender, cfg.Auth.TwoFactorOTPExpiry),
	)
	twoFactorManager := twofactor.NewManager(driverRegistry, profileRepo, logger, auditLogger, cfg.Auth.RecoveryCodeCount)

	// OAuth client and identity resolver
	oauthClient := social.NewOAuthClient(cfg.OAuth.Providers, logger)
	resolver := social.NewResolver(db, userRepo, socialRepo, profileRepo, logger, auditLogger)

	// Primary authentication methods
	methodRegistry := methods.NewRegistry(
		methods.NewPasswordMethod(userRepo, profileRepo, hasher, logger),
		methods.NewOTPMethod(userRepo, codeRepo),
		methods.NewMagicLinkMethod(userRepo, codeRepo),
		methods.NewWebAuthnMethod(webauthnManager, userRepo, passkeyRepo, sessions, logger),
		methods.NewSocialMethod(oauthClient, resolver, sessions),
		methods.NewAPITokenMethod(tokenRepo, apiTokens, logger),
	)

	orch := orchestrator.New(methodRegistry, driverRegistry, userRepo, profileRepo, sessions, challengeTokens, logger, auditLogger)

	// Lifecycle services
	registrationService := services.NewRegistrationService(db, userRepo, profileRepo, codeRepo, mailer, hasher, cfg.Auth.OTPExpiry, logger, auditLogger)
	passwordResetService := services.NewPasswordResetService(userRepo, profileRepo, codeRepo, mailer, hasher, cfg.Server.BaseURL, cfg.Auth.PasswordResetTTL, logger, auditLogger)
	passwordlessService := services.NewPasswordlessService(userRepo, codeRepo, mailer, smsSender, cfg.Server.BaseURL, cfg.Auth.MagicLinkExpiry, cfg.Auth.OTPExpiry, logger)
	passkeyService := services.NewPasskeyService(webauthnManager, userRepo, passkeyRepo, sessions, logger, auditLogger)
	apiTokenService := services.NewAPITokenService(tokenRepo, apiTokens)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(orch, cfg)
	registrationHandler := handlers.NewRegistrationHandler(registrationService, orch, cfg)
	passwordlessHandler := handlers.NewPasswordlessHandler(passwordlessService, passwordResetService)
	socialHandler := handlers.NewSocialHandler(oauthClient, orch, sessions, cfg)
	passkeyHandler := handlers.NewPasskeyHandler(passkeyService, orch, cfg)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorManager, driverRegistry, userRepo)
	apiTokenHandler := handlers.NewAPITokenHandler(apiTokenService)

	// Background code janitor
	janitor := background.NewCodeJanitor(codeRepo, cfg.Auth.CleanupInterval, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.Session(middlewareCustom.SessionConfig{Secure: cfg.Server.Env == "production"}))

	// Register routes
	routes.RegisterRoutes(router,
		authHandler, registrationHandler, passwordlessHandler, socialHandler,
		passkeyHandler, twoFactorHandler, apiTokenHandler, sessions)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start janitor
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()

	go janitor.Run(janitorCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	janitorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
