package routes

import (
	"time"

	"tontiflex/internal/adapters/http/handlers"
	"tontiflex/internal/adapters/http/middleware"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/config"
	"tontiflex/internal/core/services"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers, then registers all
// application routes.
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config, log *zap.Logger, rdb *redis.Client) *services.ExpiryService {
	// Repositories
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	institutionRepo := repositories.NewInstitutionRepository(db)
	tontineRepo := repositories.NewTontineRepository(db)
	accountRepo := repositories.NewAccountRepository(db)
	membershipRepo := repositories.NewMembershipRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)
	bookletRepo := repositories.NewBookletRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Services
	authService := services.NewAuthService(userRepo, refreshTokenRepo, cfg, log)
	ledgerService := services.NewLedgerService(institutionRepo)
	paymentService := services.NewPaymentService(paymentRepo, cfg.Payment, log)
	notificationService := services.NewNotificationService(rdb, cfg.Redis.Stream, log)
	membershipService := services.NewMembershipService(
		db, membershipRepo, tontineRepo, bookletRepo, auditRepo,
		paymentService, notificationService, log)
	loanService := services.NewLoanService(
		db, loanRepo, institutionRepo, accountRepo, auditRepo,
		ledgerService, paymentService, notificationService,
		services.DefaultScorer{}, log)
	withdrawalService := services.NewWithdrawalService(
		db, withdrawalRepo, accountRepo, auditRepo,
		ledgerService, paymentService, notificationService, log)
	bookletService := services.NewBookletService(
		db, bookletRepo, tontineRepo, paymentService, ledgerService,
		notificationService, log)
	tontineService := services.NewTontineService(tontineRepo, log)
	dashboardService := services.NewDashboardService(
		membershipService, loanService, withdrawalService, ledgerService)
	expiryService := services.NewExpiryService(
		cfg.Expiry, membershipService, withdrawalService, log)

	// Handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService, cfg)
	userHandler := handlers.NewUserHandler(authService)
	tontineHandler := handlers.NewTontineHandler(tontineService)
	membershipHandler := handlers.NewMembershipHandler(membershipService)
	loanHandler := handlers.NewLoanHandler(loanService)
	withdrawalHandler := handlers.NewWithdrawalHandler(withdrawalService)
	bookletHandler := handlers.NewBookletHandler(bookletService)
	paymentHandler := handlers.NewPaymentHandler(
		paymentService, membershipService, withdrawalService,
		loanService, bookletService, log)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)

	// Health endpoints
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	api := app.Group("/api/v1")
	api.Get("/", healthHandler.APIInfo)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", middleware.AuthRateLimiter(), authHandler.Register)
	auth.Post("/login", middleware.AuthRateLimiter(), authHandler.Login)
	auth.Post("/refresh", authHandler.RefreshToken)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/logout-all", middleware.AuthMiddleware(cfg), authHandler.LogoutAll)
	auth.Get("/me", middleware.AuthMiddleware(cfg), authHandler.Me)

	// Payment gateway callback, authenticated by transaction reference
	api.Post("/payments/callback", middleware.CallbackRateLimiter(), paymentHandler.Callback)

	// Everything below requires authentication
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	// Tontine routes
	tontines := protected.Group("/tontines")
	tontines.Get("/", middleware.CacheControl(30*time.Second), tontineHandler.List)
	tontines.Get("/:id", tontineHandler.Get)
	tontines.Post("/", middleware.AdminOnly(), tontineHandler.Create)
	tontines.Patch("/:id/status", middleware.AdminOnly(), tontineHandler.SetStatus)
	tontines.Get("/:id/participants", middleware.StaffOnly(), tontineHandler.Participants)

	// Membership workflow routes
	memberships := protected.Group("/memberships")
	memberships.Post("/", middleware.ClientOnly(), membershipHandler.Submit)
	memberships.Get("/my", membershipHandler.My)
	memberships.Get("/", middleware.StaffOnly(), membershipHandler.List)
	memberships.Get("/:id", membershipHandler.Get)
	memberships.Get("/:id/history", middleware.StaffOnly(), membershipHandler.History)
	memberships.Post("/:id/validate", middleware.AgentOnly(), membershipHandler.Validate)
	memberships.Post("/:id/reject", middleware.AgentOnly(), membershipHandler.Reject)
	memberships.Post("/:id/pay", middleware.ClientOnly(), membershipHandler.Pay)

	// Loan workflow routes
	loans := protected.Group("/loans")
	loans.Post("/", middleware.ClientOnly(), loanHandler.Submit)
	loans.Get("/my", loanHandler.My)
	loans.Get("/", middleware.StaffOnly(), loanHandler.List)
	loans.Get("/:id", loanHandler.Get)
	loans.Get("/:id/history", middleware.StaffOnly(), loanHandler.History)
	loans.Get("/:id/schedule", loanHandler.Schedule)
	loans.Post("/:id/review", middleware.SupervisorOnly(), loanHandler.BeginReview)
	loans.Post("/:id/supervisor-decision", middleware.SupervisorOnly(), loanHandler.SupervisorDecision)
	loans.Post("/:id/admin-decision", middleware.AdminOnly(), loanHandler.AdminDecision)
	loans.Post("/:id/disburse", middleware.StaffOnly(), loanHandler.Disburse)
	loans.Post("/:id/repay", middleware.ClientOnly(), loanHandler.Repay)

	// Withdrawal workflow routes
	withdrawals := protected.Group("/withdrawals")
	withdrawals.Post("/", middleware.ClientOnly(), withdrawalHandler.Request)
	withdrawals.Get("/my", withdrawalHandler.My)
	withdrawals.Get("/", middleware.StaffOnly(), withdrawalHandler.List)
	withdrawals.Get("/:id", withdrawalHandler.Get)
	withdrawals.Get("/:id/history", middleware.StaffOnly(), withdrawalHandler.History)
	withdrawals.Post("/:id/approve", middleware.AgentOnly(), withdrawalHandler.Approve)
	withdrawals.Post("/:id/reject", middleware.AgentOnly(), withdrawalHandler.Reject)
	withdrawals.Post("/:id/retry-payout", middleware.StaffOnly(), withdrawalHandler.RetryPayout)

	// Booklet routes
	booklets := protected.Group("/booklets")
	booklets.Get("/my", bookletHandler.My)
	booklets.Post("/contribute", middleware.ClientOnly(), bookletHandler.Contribute)
	booklets.Get("/:tontineId/current", bookletHandler.Current)
	booklets.Get("/:tontineId/calendar", middleware.CacheControl(10*time.Second), bookletHandler.Calendar)
	booklets.Get("/:tontineId/statistics", bookletHandler.Statistics)

	// Dashboard routes
	dashboard := protected.Group("/dashboard", middleware.StaffOnly())
	dashboard.Get("/overview", dashboardHandler.GetOverview)
	dashboard.Get("/funds/:institutionId", dashboardHandler.GetFunds)

	// Account administration routes
	users := protected.Group("/users", middleware.AdminOnly())
	users.Get("/", userHandler.ListUsers)
	users.Post("/staff", userHandler.CreateStaff)
	users.Patch("/:id/active", userHandler.SetActive)

	return expiryService
}
