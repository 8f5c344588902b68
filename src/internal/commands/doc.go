// Package commands implements the CLI subcommands of dnsdivert.
//
// Each command implements the Runner interface:
//   - Init(): parse arguments and load the configuration
//   - Run(): execute the command
//   - Name(): return the command name for routing
//
// # Available Commands
//
//   - service: run the DNS proxy (and the control API when enabled)
//   - check-config: validate the configuration and print a summary
//   - resolve: answer one name through the configured policy and resolver chain
package commands
