package handlers

import (
	"io"
	"net/http"

	"github.com/leadhub/crm/internal/sheets"
	svc "github.com/leadhub/crm/internal/services"
)

const maxUploadBytes = 32 << 20

// POST /api/import (multipart: file, batch_name, description)
func ImportBatch(importer *svc.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpError(w, http.StatusBadRequest, "expected a multipart upload")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		src, err := sheets.Open(header.Filename, file)
		if err != nil {
			writeError(w, r, &svc.ImportError{Err: err})
			return
		}
		if c, ok := src.(io.Closer); ok {
			defer c.Close()
		}

		res, err := importer.Import(r.Context(), src, svc.ImportOptions{
			BatchName:   r.FormValue("batch_name"),
			Description: r.FormValue("description"),
			FileName:    header.Filename,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "Import completed",
			"batch_id":       res.BatchID,
			"imported_count": res.ImportedCount,
			"skipped_count":  res.SkippedCount,
		})
	}
}

// GET /api/batches
func ListBatches(importer *svc.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batches, err := importer.ListBatches(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, batches)
	}
}

// GET /api/batches/{id}
func GetBatch(importer *svc.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		b, err := importer.GetBatch(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// DELETE /api/batches/{id}?delete_leads=true
func DeleteBatch(importer *svc.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		deleteLeads := queryBool(r, "delete_leads")
		n, err := importer.DeleteBatch(r.Context(), id, deleteLeads)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "success",
			"leads_affected": n,
			"leads_deleted":  deleteLeads,
		})
	}
}
