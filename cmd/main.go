package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/gorilla/mux"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/WmBreck/2nd-opinion-construction/internal/app"
	"github.com/WmBreck/2nd-opinion-construction/internal/config"
	"github.com/WmBreck/2nd-opinion-construction/internal/controllers"
	"github.com/WmBreck/2nd-opinion-construction/internal/middleware"
	"github.com/WmBreck/2nd-opinion-construction/internal/repositories"
	"github.com/WmBreck/2nd-opinion-construction/internal/routes"
	"github.com/WmBreck/2nd-opinion-construction/internal/services"
	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

const cleanupTimeout = 2 * time.Minute

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	//----------------------------------------------------------------------
	// Repositories
	//----------------------------------------------------------------------
	leadRepo := repositories.NewLeadRepository(application.DB)
	uploadRepo := repositories.NewUploadRepository(application.DB)
	identityRepo := repositories.NewIdentityRepository(application.DB)
	emailCodeRepo := repositories.NewEmailVerificationRepository(application.DB)
	rateLimitRepo := repositories.NewRateLimitRepository(application.DB)

	//----------------------------------------------------------------------
	// Services
	//----------------------------------------------------------------------
	mailer := services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.LDFlag_SendgridSandboxMode)
	rateLimiterService := services.NewRateLimiterService(rateLimitRepo, cfg)

	verificationService := services.NewVerificationService(
		cfg,
		emailCodeRepo,
		identityRepo,
		rateLimiterService,
		mailer,
		nil,
	)

	notificationService := services.NewNotificationService(
		cfg,
		leadRepo,
		uploadRepo,
		application.Storage,
		mailer,
	)

	var checkPhone services.PhoneChecker
	if cfg.LDFlag_ValidatePhoneWithTwilio {
		checkPhone = services.NewTwilioPhoneChecker(application.Twilio)
	}

	intakeService := services.NewIntakeService(
		cfg,
		services.NewSessionRegistry(),
		verificationService,
		leadRepo,
		uploadRepo,
		application.Storage,
		notificationService,
		checkPhone,
	)

	cleanupService := services.NewCleanupService(emailCodeRepo, rateLimitRepo)

	tokens := middleware.NewSessionTokens(cfg.SessionSigningKey, cfg.SessionTTL)

	//----------------------------------------------------------------------
	// Controllers
	//----------------------------------------------------------------------
	healthController := controllers.NewHealthController(application.DB, application.Storage, cfg)
	intakeController := controllers.NewIntakeController(intakeService, tokens, cfg.StagingDir)
	notifyController := controllers.NewNotifyController(notificationService)

	//----------------------------------------------------------------------
	// Router & Endpoints
	//----------------------------------------------------------------------
	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(controllers.MethodNotAllowed)

	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods("GET")
	router.HandleFunc(routes.Ping, healthController.PingHandler).Methods("GET")

	// Opening a session is the only public intake call; it hands back the
	// bearer token every other step needs.
	router.HandleFunc(routes.IntakeSessions, intakeController.StartSessionHandler).Methods("POST")

	sessionRouter := router.PathPrefix(routes.IntakeCurrent).Subrouter()
	sessionRouter.Use(middleware.SessionAuthMiddleware(tokens))
	sessionRouter.HandleFunc("", intakeController.GetSessionHandler).Methods("GET")
	sessionRouter.HandleFunc("", intakeController.CloseHandler).Methods("DELETE")
	sessionRouter.HandleFunc(suffix(routes.IntakeContact), intakeController.SubmitContactHandler).Methods("POST")
	sessionRouter.HandleFunc(suffix(routes.IntakeOTP), intakeController.VerifyCodeHandler).Methods("POST")
	sessionRouter.HandleFunc(suffix(routes.IntakeOTPResend), intakeController.ResendCodeHandler).Methods("POST")
	sessionRouter.HandleFunc(suffix(routes.IntakeFiles), intakeController.AddFilesHandler).Methods("POST")
	sessionRouter.HandleFunc(suffix(routes.IntakeFile), intakeController.RemoveFileHandler).Methods("DELETE")
	sessionRouter.HandleFunc(suffix(routes.IntakeUpload), intakeController.UploadHandler).Methods("POST")
	sessionRouter.HandleFunc(suffix(routes.IntakeReset), intakeController.ResetHandler).Methods("POST")

	// Internal: called by the site's own backend, not the browser.
	notifyRouter := router.PathPrefix(routes.NotifyNewLead).Subrouter()
	notifyRouter.Use(middleware.ServiceKeyMiddleware(cfg.NotifyServiceKey))
	notifyRouter.HandleFunc("", notifyController.NotifyNewLeadHandler)

	//----------------------------------------------------------------------
	// Scheduled jobs
	//----------------------------------------------------------------------
	c := cron.New(cron.WithLocation(time.UTC))

	// idle intake sessions
	if _, err := c.AddFunc("@every 10m", func() {
		intakeService.SweepIdle(context.Background())
	}); err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule idle session sweep")
	}

	// verification codes
	if _, err := c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if e := cleanupService.CleanupVerificationCodes(ctx); e != nil {
			utils.Logger.WithError(e).Error("Scheduled verification-codes cleanup failed")
		}
	}); err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule verification-codes cleanup job")
	}

	// rate limit counters
	if _, err := c.AddFunc("10 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if e := cleanupService.CleanupRateLimits(ctx); e != nil {
			utils.Logger.WithError(e).Error("Scheduled rate limit counter cleanup failed")
		}
	}); err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule rate limit counter cleanup job")
	}

	c.Start()
	defer c.Stop()

	allowedOrigins := []string{cfg.AppUrl}
	if cfg.SiteURL != "" && cfg.SiteURL != cfg.AppUrl {
		allowedOrigins = append(allowedOrigins, cfg.SiteURL)
	}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, utils.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.ServiceKeyHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("Failed to start server:", err)
	}
}

// suffix strips the session prefix so a route can hang off sessionRouter.
func suffix(route string) string {
	return route[len(routes.IntakeCurrent):]
}
