package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/go-playground/validator/v10"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Handler manages all API endpoints and dependencies.
type Handler struct {
	configPath   string
	service      Service
	configHasher *config.ConfigHasher
	dnsCheck     DNSCheckSubscriber
}

// NewHandler creates a new API handler. configHasher and dnsCheck may be nil.
func NewHandler(configPath string, service Service, configHasher *config.ConfigHasher, dnsCheck DNSCheckSubscriber) *Handler {
	return &Handler{
		configPath:   configPath,
		service:      service,
		configHasher: configHasher,
		dnsCheck:     dnsCheck,
	}
}

// loadConfig loads the configuration from disk.
func (h *Handler) loadConfig() (*config.Config, error) {
	return config.LoadConfig(h.configPath)
}

// afterWrite refreshes the config hash and applies the new state.
func (h *Handler) afterWrite() error {
	if h.configHasher != nil {
		if _, err := h.configHasher.UpdateCurrentConfigHash(); err != nil {
			log.Warnf("Failed to update config hash after save: %v", err)
		}
	}
	return h.service.Reload()
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(DataResponse{Data: data}); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// decodeAndValidate decodes the JSON body into v and validates it.
// It writes the error response itself and reports whether the caller may proceed.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteInvalidRequest(w, "Invalid JSON: "+err.Error())
		return false
	}

	if err := config.Validator().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]interface{}, len(verrs))
			for _, e := range verrs {
				details[e.Namespace()] = fmt.Sprintf("failed on '%s'", e.Tag())
			}
			WriteValidationError(w, "Request validation failed", details)
			return false
		}
		WriteInvalidRequest(w, err.Error())
		return false
	}

	return true
}
