package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	dnserrors "github.com/dnsdivert/dnsdivert/src/internal/errors"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"github.com/dnsdivert/dnsdivert/src/internal/utils"
)

// ReadLinesFile returns the non-blank lines of a file, trimmed. Comment lines are kept.
func ReadLinesFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.CloseOrWarn(file)

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return lines, nil
}

// WriteLinesFile atomically replaces path with one line per entry.
func WriteLinesFile(path string, lines []string) error {
	var sb strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return utils.WriteFileAtomic(path, []byte(sb.String()), 0644)
}

// readOptionalLines reads a list file; a missing file yields no lines.
func readOptionalLines(path, what string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	lines, err := ReadLinesFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("%s file %s does not exist, treating it as empty", what, path)
		return nil, nil
	}
	return lines, err
}

// WhitelistEntries returns the inline whitelist followed by the whitelist file entries.
func (c *Config) WhitelistEntries() ([]string, error) {
	fromFile, err := readOptionalLines(c.GetAbsWhitelistFile(), "Whitelist")
	if err != nil {
		return nil, err
	}
	return append(append([]string{}, c.Server.Whitelist...), fromFile...), nil
}

// AllowedClientEntries returns the inline allowed clients followed by the file entries.
func (c *Config) AllowedClientEntries() ([]string, error) {
	fromFile, err := readOptionalLines(c.GetAbsAllowedClientsFile(), "Allowed clients")
	if err != nil {
		return nil, err
	}
	return append(append([]string{}, c.Server.AllowedClients...), fromFile...), nil
}

// BuildSnapshot composes the policy snapshot from the configuration and its list files.
func BuildSnapshot(c *Config) (*policy.Snapshot, error) {
	diversion, err := netip.ParseAddr(c.Server.DiversionAddress)
	if err != nil || !diversion.Is4() {
		return nil, dnserrors.NewConfigError(fmt.Sprintf("invalid diversion address %q", c.Server.DiversionAddress), err)
	}

	whitelist, err := c.WhitelistEntries()
	if err != nil {
		return nil, dnserrors.NewConfigError("failed to read whitelist", err)
	}

	clientEntries, err := c.AllowedClientEntries()
	if err != nil {
		return nil, dnserrors.NewConfigError("failed to read allowed clients", err)
	}

	clients, err := policy.ParseClients(clientEntries)
	if err != nil {
		return nil, dnserrors.NewConfigError("invalid allowed clients", err)
	}

	return policy.NewSnapshot(policy.Snapshot{
		DiversionAddress: diversion,
		AllowAll:         c.Server.AllowAll,
		Whitelist:        whitelist,
		RestrictClients:  c.Server.RestrictClients,
		AllowedClients:   clients,
	}), nil
}
