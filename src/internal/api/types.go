package api

import "github.com/dnsdivert/dnsdivert/src/internal/dnsproxy"

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// StatusResponse returns the proxy state, policy summary and counters.
type StatusResponse struct {
	State            string         `json:"state"`
	Mode             string         `json:"mode"`
	DiversionAddress string         `json:"diversion_address"`
	WhitelistSize    int            `json:"whitelist_size"`
	RestrictClients  bool           `json:"restrict_clients"`
	AllowedClients   int            `json:"allowed_clients"`
	Upstreams        []string       `json:"upstreams"`
	ConfigChanged    *bool          `json:"config_changed,omitempty"`
	Stats            dnsproxy.Stats `json:"stats"`
}

// WhitelistResponse lists whitelist tokens.
type WhitelistResponse struct {
	// Domains are the entries of the whitelist file.
	Domains []string `json:"domains"`
	// Inline are the tokens set in the configuration file itself.
	Inline []string `json:"inline"`
	// File is the absolute path of the whitelist file, empty when not configured.
	File string `json:"file"`
}

// UpdateWhitelistRequest replaces the whitelist file.
type UpdateWhitelistRequest struct {
	Domains []string `json:"domains" validate:"dive,required,max=253"`
}

// AllowedClientsResponse lists allowed client addresses and prefixes.
type AllowedClientsResponse struct {
	Clients []string `json:"clients"`
	Inline  []string `json:"inline"`
	File    string   `json:"file"`
	Enabled bool     `json:"enabled"`
}

// UpdateAllowedClientsRequest replaces the allowed clients file.
type UpdateAllowedClientsRequest struct {
	Clients []string `json:"clients" validate:"dive,ip_or_cidr"`
}

// ReloadResponse is returned after a successful reload.
type ReloadResponse struct {
	Mode          string `json:"mode"`
	WhitelistSize int    `json:"whitelist_size"`
}
