package api

import (
	"net/http"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(configPath string, service Service, configHasher *config.ConfigHasher, dnsCheck DNSCheckSubscriber) http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(Logger)
	r.Use(PrivateSubnetOnly)
	r.Use(JSONContentType)

	h := NewHandler(configPath, service, configHasher, dnsCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.CheckHealth)
		r.Get("/status", h.GetStatus)
		r.Post("/reload", h.Reload)

		r.Get("/whitelist", h.GetWhitelist)
		r.Put("/whitelist", h.UpdateWhitelist)

		r.Get("/allowed-clients", h.GetAllowedClients)
		r.Put("/allowed-clients", h.UpdateAllowedClients)

		r.Get("/check/dns", h.CheckDNS) // SSE stream
	})

	return r
}
