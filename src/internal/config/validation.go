package config

import (
	"fmt"
	"net/netip"
	"reflect"
	"regexp"
	"strings"

	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/upstreams"
	"github.com/go-playground/validator/v10"
)

var iptablesChainRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,27}$`)

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "ip":
		return "must be a valid IP address"
	case "hostname_port":
		return "must be in format 'host:port'"
	case "ipv4_addr":
		return "must be a valid IPv4 address"
	case "ip_or_cidr":
		return "must be an IP address or a CIDR prefix"
	case "upstream_url":
		return "must be a valid upstream URL (system://, udp://ip[:port], or doh://host/path)"
	case "failure_reply":
		return fmt.Sprintf("must be one of: %s, %s, %s", FailureReplyServFail, FailureReplyNXDomain, FailureReplyDrop)
	case "iptables_chain":
		return "must start with a letter and contain only letters, digits, '_' and '-' (max 28 characters)"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	FieldPath string // Dot-notation field path (e.g., "server.diversion_address")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("ipv4_addr", validateIPv4Addr); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("ip_or_cidr", validateIPOrCIDR); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("upstream_url", validateUpstreamURLTag); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("failure_reply", validateFailureReply); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("iptables_chain", validateIPTablesChain); err != nil {
		panic(err)
	}

	// Report field names as they appear in the config file
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	return validate
}

// Custom validator: dotted-quad IPv4 address
func validateIPv4Addr(fl validator.FieldLevel) bool {
	addr, err := netip.ParseAddr(fl.Field().String())
	return err == nil && addr.Is4()
}

// Custom validator: IP address or CIDR prefix
func validateIPOrCIDR(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if value == "" {
		return false
	}
	_, err := policy.ParseClients([]string{value})
	return err == nil
}

// Custom validator: upstream URL format
func validateUpstreamURLTag(fl validator.FieldLevel) bool {
	return validateUpstreamURL(fl.Field().String()) == nil
}

// Custom validator: failure reply mode
func validateFailureReply(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case FailureReplyServFail, FailureReplyNXDomain, FailureReplyDrop:
		return true
	default:
		return false
	}
}

// Custom validator: iptables chain name
func validateIPTablesChain(fl validator.FieldLevel) bool {
	return iptablesChainRegexp.MatchString(fl.Field().String())
}

// validateUpstreamURL checks that an upstream URL maps to a known strategy
func validateUpstreamURL(upstream string) error {
	if upstream == "" {
		return fmt.Errorf("upstream URL cannot be empty")
	}

	u, err := upstreams.ParseUpstream(upstream)
	if err != nil {
		return err
	}
	return u.Close()
}
