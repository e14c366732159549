package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/leadhub/crm/internal/bot"
	"github.com/leadhub/crm/internal/handlers"
	"github.com/leadhub/crm/internal/metrics"
	svc "github.com/leadhub/crm/internal/services"
)

type Deps struct {
	DB       *gorm.DB
	Leads    *svc.LeadStore
	Importer *svc.Importer
	Ledger   *svc.Ledger
	Accounts *svc.Accounts
	Stats    *svc.StatsService

	Auth         *handlers.Auth
	LoginLimiter *handlers.RateLimiter

	// Dispatcher is nil when no bot token is configured.
	Dispatcher    *bot.Dispatcher
	BotUsername   string
	WebhookSecret string

	CORSOrigins []string
}

func Router(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handlers.Health(d.DB))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/token", handlers.Token(d.Auth, d.Accounts, d.LoginLimiter))
		api.Post("/register", handlers.Register(d.Accounts, d.LoginLimiter))
		api.Post("/telegram/webhook", handlers.TelegramWebhook(d.Dispatcher, d.WebhookSecret))

		api.Group(func(pr chi.Router) {
			pr.Use(d.Auth.RequireAccount)
			pr.Use(middleware.Timeout(60 * time.Second))

			pr.Get("/users/me", handlers.Me)

			// Leads
			pr.Get("/leads", handlers.ListLeads(d.Leads))
			pr.Get("/leads/count", handlers.CountLeads(d.Leads))
			pr.Post("/leads", handlers.CreateLead(d.Leads))
			pr.Get("/leads/{id}", handlers.GetLead(d.Leads))
			pr.Post("/leads/{id}/archive", handlers.ArchiveLead(d.Leads))
			pr.Post("/leads/{id}/restore", handlers.RestoreLead(d.Leads))
			pr.Delete("/leads/{id}", handlers.DeleteLead(d.Leads))
			pr.Post("/interactions", handlers.CreateInteraction(d.Leads))
			pr.With(handlers.RequireAdmin).Post("/stages/rename", handlers.RenameStage(d.Leads))

			// Batches
			pr.Post("/import", handlers.ImportBatch(d.Importer))
			pr.Get("/batches", handlers.ListBatches(d.Importer))
			pr.Get("/batches/{id}", handlers.GetBatch(d.Importer))
			pr.Delete("/batches/{id}", handlers.DeleteBatch(d.Importer))

			// Ledger
			pr.Post("/distribute", handlers.Distribute(d.Ledger))
			pr.Get("/transactions", handlers.Transactions(d.Ledger))
			pr.Get("/stats", handlers.Stats(d.Stats))

			// Telegram linking
			pr.Post("/telegram/connect", handlers.TelegramConnect(d.Accounts, d.BotUsername))
			pr.Delete("/telegram/connect", handlers.TelegramDisconnect(d.Accounts))
			pr.Get("/telegram/connect.png", handlers.TelegramConnectQR(d.Accounts, d.BotUsername))
		})
	})

	return r
}
