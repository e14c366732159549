package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/leadhub/crm/internal/bot"
	svc "github.com/leadhub/crm/internal/services"
)

func deepLink(botUsername, token string) string {
	return "https://t.me/" + botUsername + "?start=" + url.QueryEscape(token)
}

// POST /api/telegram/connect
func TelegramConnect(accounts *svc.Accounts, botUsername string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil {
			writeError(w, r, errNoAccount)
			return
		}
		token, err := accounts.IssueConnectToken(r.Context(), acc.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := map[string]any{"token": token, "bot_username": botUsername}
		if botUsername != "" {
			resp["link"] = deepLink(botUsername, token)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// DELETE /api/telegram/connect
func TelegramDisconnect(accounts *svc.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil {
			writeError(w, r, errNoAccount)
			return
		}
		if err := accounts.UnlinkTelegram(r.Context(), acc.ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// GET /api/telegram/connect.png[?token=] renders the deep link as a QR code.
// A token is issued unless the caller passes its current one.
func TelegramConnectQR(accounts *svc.Accounts, botUsername string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil {
			writeError(w, r, errNoAccount)
			return
		}
		if botUsername == "" {
			httpError(w, http.StatusServiceUnavailable, "telegram bot is not configured")
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" || acc.ConnectToken == nil || *acc.ConnectToken != token {
			var err error
			if token, err = accounts.IssueConnectToken(r.Context(), acc.ID); err != nil {
				writeError(w, r, err)
				return
			}
		}

		png, err := qrcode.Encode(deepLink(botUsername, token), qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to generate qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

// POST /api/telegram/webhook?secret=...
// Telegram retries non-2xx answers, so handler errors are logged and still
// acknowledged.
func TelegramWebhook(d *bot.Dispatcher, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" &&
			r.URL.Query().Get("secret") != secret &&
			r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != secret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if d == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "no bot token"})
			return
		}

		b, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
		if err != nil {
			httpError(w, http.StatusBadRequest, "bad request")
			return
		}
		var up bot.Update
		if err := json.Unmarshal(b, &up); err != nil {
			httpError(w, http.StatusBadRequest, "bad request")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
		defer cancel()
		if err := d.Handle(ctx, &up); err != nil {
			log.Printf("[bot] update %d: %v", up.UpdateID, err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
