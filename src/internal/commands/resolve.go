package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/upstreams"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/wire"
)

func CreateResolveCommand() *ResolveCommand {
	return &ResolveCommand{
		fs:  flag.NewFlagSet("resolve", flag.ExitOnError),
		out: os.Stdout,
	}
}

// ResolveCommand shows what the proxy would answer for one name,
// without binding the DNS listener.
type ResolveCommand struct {
	fs    *flag.FlagSet
	name  string
	snap  *policy.Snapshot
	chain *upstreams.Chain
	out   io.Writer
}

func (r *ResolveCommand) Name() string {
	return r.fs.Name()
}

func (r *ResolveCommand) Init(args []string, ctx *AppContext) error {
	if err := r.fs.Parse(args); err != nil {
		return err
	}

	if r.fs.NArg() != 1 {
		return fmt.Errorf("usage: resolve <name>")
	}
	r.name = wire.NormalizeName(r.fs.Arg(0))

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}

	snap, err := config.BuildSnapshot(cfg)
	if err != nil {
		return err
	}
	r.snap = snap

	chain, err := buildChain(cfg)
	if err != nil {
		return err
	}
	r.chain = chain

	return nil
}

func (r *ResolveCommand) Run() error {
	defer r.chain.Close()

	decision := policy.Decide(r.name, r.snap)
	if decision.Action == policy.Divert {
		if decision.Token != "" {
			fmt.Fprintf(r.out, "%s -> %s (diverted, matched %q)\n", r.name, decision.Address, decision.Token)
		} else {
			fmt.Fprintf(r.out, "%s -> %s (diverted, allow-all)\n", r.name, decision.Address)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.chainDeadline())
	defer cancel()

	res := r.chain.Resolve(ctx, r.name)
	if !res.OK() {
		return res.Failure
	}

	fmt.Fprintf(r.out, "%s -> %s (forwarded via %s)\n", r.name, res.Address, res.Strategy)
	return nil
}

// chainDeadline leaves room for every upstream attempt.
func (r *ResolveCommand) chainDeadline() time.Duration {
	return time.Duration(len(r.chain.Upstreams())+1) * r.chain.Timeout()
}
