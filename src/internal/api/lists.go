package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
)

// readListFile returns the lines of a list file; a missing file is empty.
func readListFile(path string) ([]string, error) {
	if path == "" {
		return []string{}, nil
	}
	lines, err := config.ReadLinesFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetWhitelist returns the whitelist file entries and the inline tokens.
// GET /api/v1/whitelist
func (h *Handler) GetWhitelist(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loadConfig()
	if err != nil {
		WriteInternalError(w, "Failed to load configuration: "+err.Error())
		return
	}

	path := cfg.GetAbsWhitelistFile()
	domains, err := readListFile(path)
	if err != nil {
		WriteInternalError(w, "Failed to read whitelist: "+err.Error())
		return
	}

	writeJSONData(w, WhitelistResponse{
		Domains: domains,
		Inline:  nonNil(cfg.Server.Whitelist),
		File:    path,
	})
}

// UpdateWhitelist replaces the whitelist file and reloads the policy.
// PUT /api/v1/whitelist
func (h *Handler) UpdateWhitelist(w http.ResponseWriter, r *http.Request) {
	var req UpdateWhitelistRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := h.loadConfig()
	if err != nil {
		WriteInternalError(w, "Failed to load configuration: "+err.Error())
		return
	}

	path := cfg.GetAbsWhitelistFile()
	if path == "" {
		WriteConflict(w, "server.whitelist_file is not configured")
		return
	}

	if err := config.WriteLinesFile(path, req.Domains); err != nil {
		WriteInternalError(w, "Failed to write whitelist: "+err.Error())
		return
	}

	if err := h.afterWrite(); err != nil {
		WriteServiceError(w, "Whitelist saved but reload failed: "+err.Error())
		return
	}

	h.GetWhitelist(w, r)
}

// GetAllowedClients returns the allowed clients file entries and the inline entries.
// GET /api/v1/allowed-clients
func (h *Handler) GetAllowedClients(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loadConfig()
	if err != nil {
		WriteInternalError(w, "Failed to load configuration: "+err.Error())
		return
	}

	path := cfg.GetAbsAllowedClientsFile()
	clients, err := readListFile(path)
	if err != nil {
		WriteInternalError(w, "Failed to read allowed clients: "+err.Error())
		return
	}

	writeJSONData(w, AllowedClientsResponse{
		Clients: clients,
		Inline:  nonNil(cfg.Server.AllowedClients),
		File:    path,
		Enabled: cfg.Server.RestrictClients,
	})
}

// UpdateAllowedClients replaces the allowed clients file and reloads the policy.
// PUT /api/v1/allowed-clients
func (h *Handler) UpdateAllowedClients(w http.ResponseWriter, r *http.Request) {
	var req UpdateAllowedClientsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := h.loadConfig()
	if err != nil {
		WriteInternalError(w, "Failed to load configuration: "+err.Error())
		return
	}

	path := cfg.GetAbsAllowedClientsFile()
	if path == "" {
		WriteConflict(w, "server.allowed_clients_file is not configured")
		return
	}

	if err := config.WriteLinesFile(path, req.Clients); err != nil {
		WriteInternalError(w, "Failed to write allowed clients: "+err.Error())
		return
	}

	if err := h.afterWrite(); err != nil {
		WriteServiceError(w, "Allowed clients saved but reload failed: "+err.Error())
		return
	}

	h.GetAllowedClients(w, r)
}
