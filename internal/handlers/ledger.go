package handlers

import (
	"net/http"

	svc "github.com/leadhub/crm/internal/services"
)

type distributeRequest struct {
	Recipient   string `json:"recipient"`
	PackageType string `json:"package_type"`
	Count       int64  `json:"count"`
}

// POST /api/distribute
func Distribute(ledger *svc.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil {
			writeError(w, r, errNoAccount)
			return
		}
		var req distributeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := ledger.Distribute(r.Context(), acc.ID, req.Recipient, req.PackageType, req.Count)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "success",
			"new_balance":    res.RemainingBalance,
			"transaction_id": res.TransactionID,
		})
	}
}

// GET /api/transactions?limit=
func Transactions(ledger *svc.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil {
			writeError(w, r, errNoAccount)
			return
		}
		txs, err := ledger.ListTransactions(r.Context(), acc.ID, queryInt(r, "limit"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

// GET /api/stats
func Stats(stats *svc.StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil {
			writeError(w, r, errNoAccount)
			return
		}
		st, err := stats.Stats(r.Context(), acc.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
