package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/hashing"
	"github.com/dnsdivert/dnsdivert/src/internal/utils"
)

const hashCacheTTL = 5 * time.Minute

// ConfigHasher tells whether the configuration on disk differs from the one
// the running service applied. It keeps the hash of the file state (cached)
// and the hash recorded when the service last loaded its configuration.
type ConfigHasher struct {
	configPath string

	// Current hash (from config file) with caching
	currentHash     string
	currentHashTime time.Time

	// Active hash (from running service)
	activeHash string

	mu sync.RWMutex
}

// NewConfigHasher creates a new config hasher
func NewConfigHasher(configPath string) *ConfigHasher {
	return &ConfigHasher{
		configPath: configPath,
	}
}

// GetCurrentConfigHash returns cached hash of current config file
// Automatically calls UpdateCurrentConfigHash() on cache miss
func (h *ConfigHasher) GetCurrentConfigHash() (string, error) {
	h.mu.RLock()
	if time.Since(h.currentHashTime) < hashCacheTTL && h.currentHash != "" {
		hash := h.currentHash
		h.mu.RUnlock()
		return hash, nil
	}
	h.mu.RUnlock()

	return h.UpdateCurrentConfigHash()
}

// UpdateCurrentConfigHash recalculates config hash and resets cache
func (h *ConfigHasher) UpdateCurrentConfigHash() (string, error) {
	cfg, err := LoadConfig(h.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	hash, err := CalculateHash(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentHash = hash
	h.currentHashTime = time.Now()

	return hash, nil
}

// GetActiveConfigHash returns hash of config that was applied by the service
func (h *ConfigHasher) GetActiveConfigHash() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeHash
}

// SetActiveConfigHash records the hash of the config the service applied
func (h *ConfigHasher) SetActiveConfigHash(hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeHash = hash
}

// IsConfigChanged reports whether the file state differs from the applied one.
func (h *ConfigHasher) IsConfigChanged() (bool, error) {
	current, err := h.GetCurrentConfigHash()
	if err != nil {
		return false, err
	}
	return current != h.GetActiveConfigHash(), nil
}

// CalculateHash generates MD5 hash of the configuration and the list files it references
func CalculateHash(config *Config) (string, error) {
	hashData := &ConfigHashData{
		Server:           config.Server,
		Resolver:         config.Resolver,
		API:              config.API,
		Firewall:         config.Firewall,
		WhitelistFileMD5: hashFile(config.GetAbsWhitelistFile()),
		ClientsFileMD5:   hashFile(config.GetAbsAllowedClientsFile()),
	}

	jsonBytes, err := json.Marshal(hashData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config data: %w", err)
	}

	return hashing.ChecksumOf(bytes.NewReader(jsonBytes))
}

// hashFile returns the MD5 of a file, "" for no file, or an "error:" marker
func hashFile(path string) string {
	if path == "" {
		return ""
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("error:%v", err)
	}
	defer utils.CloseOrWarn(file)

	sum, err := hashing.ChecksumOf(file)
	if err != nil {
		return fmt.Sprintf("error:%v", err)
	}

	return sum
}

// ConfigHashData represents the structure used for hashing
type ConfigHashData struct {
	Server           *ServerConfig   `json:"server"`
	Resolver         *ResolverConfig `json:"resolver"`
	API              *APIConfig      `json:"api"`
	Firewall         *FirewallConfig `json:"firewall"`
	WhitelistFileMD5 string          `json:"whitelist_file_md5"`
	ClientsFileMD5   string          `json:"clients_file_md5"`
}
