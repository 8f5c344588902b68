// Package config loads, defaults and validates the dnsdivert configuration.
//
// The configuration is a TOML file (YAML is accepted for .yaml/.yml files) with
// four sections:
//   - [server]: DNS listener, diversion address, whitelist and client restriction
//   - [resolver]: upstream resolvers, per-attempt timeout and cache settings
//   - [api]: the local control API
//   - [firewall]: optional iptables enforcement of the allowed clients
//
// Whitelist and allowed-clients files hold one entry per line; blank lines and
// lines starting with '#' are ignored. Relative file paths are resolved against
// the directory of the configuration file.
//
// Example:
//
//	cfg, err := config.LoadConfig("/etc/dnsdivert/dnsdivert.toml")
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatalf("%v", err)
//	}
//	snap, err := config.BuildSnapshot(cfg)
package config
