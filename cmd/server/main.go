package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gorm.io/gorm/logger"

	"github.com/leadhub/crm/internal/bot"
	"github.com/leadhub/crm/internal/config"
	"github.com/leadhub/crm/internal/db"
	"github.com/leadhub/crm/internal/handlers"
	"github.com/leadhub/crm/internal/queue"
	svc "github.com/leadhub/crm/internal/services"
	"github.com/leadhub/crm/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	opts := db.Options{LogLevel: logger.Warn}
	if cfg.LogSQL {
		opts.LogLevel = logger.Info
	}
	if err := db.Init(cfg.DatabaseURL, opts); err != nil {
		log.Fatalf("db init: %v", err)
	}
	gdb := db.Conn()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts := svc.NewAccounts(gdb, cfg.WelcomeBalance, nil)
	if _, err := accounts.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminBalance); err != nil {
		log.Fatalf("ensure admin: %v", err)
	}

	tg := bot.NewClient(cfg.TelegramToken)

	// Distribution notices go straight to Telegram, or through RabbitMQ when
	// a broker is configured.
	var notifier svc.Notifier
	if tg.Enabled() {
		notifier = tg
	}
	if cfg.AMQPURL != "" {
		mq, err := queue.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer mq.Close()
		notifier = queue.NewPublisher(mq.Ch)

		if tg.Enabled() {
			// consumer gets its own channel; publishing and consuming do not share one
			wch, err := mq.Conn.Channel()
			if err != nil {
				log.Fatalf("rabbitmq worker channel: %v", err)
			}
			go func() {
				if err := queue.NewWorker(wch, tg).Run(ctx); err != nil {
					log.Printf("[queue] worker stopped: %v", err)
				}
			}()
		}
	}

	leads := svc.NewLeadStore(gdb)
	ledger := svc.NewLedger(gdb, notifier)

	var dispatcher *bot.Dispatcher
	if tg.Enabled() {
		dispatcher = bot.NewDispatcher(tg, accounts, ledger)
		if cfg.TelegramWebhookURL != "" {
			if err := tg.SetWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
				log.Printf("[bot] setWebhook: %v", err)
			}
		}
	}

	if cfg.RemindersEnabled {
		chatID, err := strconv.ParseInt(cfg.ReminderChatID, 10, 64)
		switch {
		case !tg.Enabled():
			log.Printf("[reminders] disabled: no bot token")
		case err != nil:
			log.Printf("[reminders] disabled: CHAT_ID %q is not a chat id", cfg.ReminderChatID)
		default:
			bot.NewReminder(tg, leads, chatID, cfg.ReminderHour, cfg.Location).Start(ctx)
		}
	}

	r := web.Router(web.Deps{
		DB:            gdb,
		Leads:         leads,
		Importer:      svc.NewImporter(gdb, leads, cfg.ImportChunkSize),
		Ledger:        ledger,
		Accounts:      accounts,
		Stats:         svc.NewStatsService(gdb, cfg.Location),
		Auth:          handlers.NewAuth(cfg.JWTSecret, cfg.TokenTTL, accounts),
		LoginLimiter:  handlers.NewRateLimiter(cfg.LoginLimit, cfg.LoginWindow, 0),
		Dispatcher:    dispatcher,
		BotUsername:   cfg.TelegramBotUsername,
		WebhookSecret: cfg.TelegramWebhookSecret,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("lead CRM listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	ledger.Wait()
}
