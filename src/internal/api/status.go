package api

import (
	"net/http"

	"github.com/dnsdivert/dnsdivert/src/internal/log"
)

// GetStatus returns the proxy state, applied policy summary and counters.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Upstreams: h.service.Upstreams(),
		Stats:     h.service.Stats(),
	}
	resp.State = resp.Stats.State

	if snap := h.service.Snapshot(); snap != nil {
		resp.Mode = snap.Mode()
		resp.DiversionAddress = snap.DiversionAddress.String()
		resp.WhitelistSize = len(snap.Whitelist)
		resp.RestrictClients = snap.RestrictClients
		resp.AllowedClients = len(snap.AllowedClients)
	}

	if h.configHasher != nil {
		if changed, err := h.configHasher.IsConfigChanged(); err != nil {
			log.Debugf("Failed to compare config hashes: %v", err)
		} else {
			resp.ConfigChanged = &changed
		}
	}

	writeJSONData(w, resp)
}

// Reload re-reads the configuration and list files and applies them.
// POST /api/v1/reload
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reload(); err != nil {
		WriteServiceError(w, "Failed to reload: "+err.Error())
		return
	}

	resp := ReloadResponse{}
	if snap := h.service.Snapshot(); snap != nil {
		resp.Mode = snap.Mode()
		resp.WhitelistSize = len(snap.Whitelist)
	}
	writeJSONData(w, resp)
}
