package api

import "net/http"

// CheckHealth reports that the API is up, along with the proxy state.
// GET /api/v1/health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONData(w, HealthResponse{
		Status: "ok",
		State:  h.service.Stats().State,
	})
}
