package commands

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
)

func CreateCheckConfigCommand() *CheckConfigCommand {
	return &CheckConfigCommand{
		fs:  flag.NewFlagSet("check-config", flag.ExitOnError),
		out: os.Stdout,
	}
}

type CheckConfigCommand struct {
	fs   *flag.FlagSet
	cfg  *config.Config
	snap *policy.Snapshot
	out  io.Writer
}

func (c *CheckConfigCommand) Name() string {
	return c.fs.Name()
}

func (c *CheckConfigCommand) Init(args []string, ctx *AppContext) error {
	if err := c.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}

	snap, err := config.BuildSnapshot(cfg)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.snap = snap
	return nil
}

func (c *CheckConfigCommand) Run() error {
	s := c.cfg.Server

	fmt.Fprintf(c.out, "Configuration is valid\n\n")
	fmt.Fprintf(c.out, "  Listen:            %s:%d (udp)\n", s.ListenAddr, s.ListenPort)
	fmt.Fprintf(c.out, "  Mode:              %s\n", c.snap.Mode())
	fmt.Fprintf(c.out, "  Diversion address: %s\n", c.snap.DiversionAddress)
	fmt.Fprintf(c.out, "  Whitelist entries: %d\n", len(c.snap.Whitelist))
	if c.snap.RestrictClients {
		fmt.Fprintf(c.out, "  Allowed clients:   %d prefixes\n", len(c.snap.AllowedClients))
	} else {
		fmt.Fprintf(c.out, "  Allowed clients:   any\n")
	}
	fmt.Fprintf(c.out, "  Failure reply:     %s\n", s.FailureReply)
	fmt.Fprintf(c.out, "  Upstreams:         %v\n", c.cfg.Resolver.Upstreams)

	if c.cfg.API.Enable {
		fmt.Fprintf(c.out, "  Control API:       %s\n", c.cfg.API.ListenAddr)
	} else {
		fmt.Fprintf(c.out, "  Control API:       disabled\n")
	}
	if c.cfg.Firewall.Enable {
		fmt.Fprintf(c.out, "  Firewall chain:    %s\n", c.cfg.Firewall.Chain)
	}

	return nil
}
