package httpapi

import (
	"net/http"
)

// startBackfill — POST /api/v1/admin/embeddings/backfill, запускает проход асинхронно.
func (h *handler) startBackfill(w http.ResponseWriter, r *http.Request) {
	runID, err := h.backfiller.StartBackfill()
	if err != nil {
		h.handleError(w, err, "failed to start backfill")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// backfillStatus — GET /api/v1/admin/embeddings/backfill, итог последнего прохода.
func (h *handler) backfillStatus(w http.ResponseWriter, r *http.Request) {
	report, ok := h.backfiller.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no backfill has completed yet")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
