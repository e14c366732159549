package handlers

import (
	"context"
	"net/http"
	"strings"

	svc "github.com/leadhub/crm/internal/services"
)

func leadFilter(r *http.Request) svc.LeadFilter {
	q := r.URL.Query()
	return svc.LeadFilter{
		Search:          strings.TrimSpace(q.Get("search")),
		Stage:           strings.TrimSpace(q.Get("stage")),
		IncludeArchived: queryBool(r, "include_archived"),
		Offset:          queryInt(r, "offset", "skip"),
		Limit:           queryInt(r, "limit"),
	}
}

// GET /api/leads?search=&stage=&include_archived=&skip=&limit=
func ListLeads(store *svc.LeadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leads, err := store.List(r.Context(), leadFilter(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, leads)
	}
}

// GET /api/leads/count
func CountLeads(store *svc.LeadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.Count(r.Context(), leadFilter(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"count": n})
	}
}

// POST /api/leads
func CreateLead(store *svc.LeadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.LeadInput
		if !decodeJSON(w, r, &in) {
			return
		}
		lead, err := store.Create(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, lead)
	}
}

// GET /api/leads/{id}
func GetLead(store *svc.LeadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		lead, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func ArchiveLead(store *svc.LeadStore) http.HandlerFunc {
	return leadAction(store.Archive)
}

func RestoreLead(store *svc.LeadStore) http.HandlerFunc {
	return leadAction(store.Restore)
}

// DELETE /api/leads/{id}
func DeleteLead(store *svc.LeadStore) http.HandlerFunc {
	return leadAction(store.Delete)
}

func leadAction(fn func(ctx context.Context, id uint) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := fn(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// POST /api/interactions
func CreateInteraction(store *svc.LeadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.InteractionInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if in.LeadID == 0 {
			httpError(w, http.StatusBadRequest, "lead_id is required")
			return
		}
		it, err := store.RecordInteraction(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, it)
	}
}

// POST /api/stages/rename (admin)
func RenameStage(store *svc.LeadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		n, err := store.RenameStage(r.Context(), body.From, body.To)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
	}
}
