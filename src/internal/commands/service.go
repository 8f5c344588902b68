package commands

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/api"
	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/log"
	"golang.org/x/sync/errgroup"
)

func CreateServiceCommand() *ServiceCommand {
	return &ServiceCommand{
		fs: flag.NewFlagSet("service", flag.ExitOnError),
	}
}

type ServiceCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config
	ctx *AppContext

	app *App
}

func (s *ServiceCommand) Name() string {
	return s.fs.Name()
}

func (s *ServiceCommand) Init(args []string, ctx *AppContext) error {
	s.ctx = ctx

	if err := s.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	s.cfg = cfg

	app, err := NewApp(ctx.ConfigPath, cfg)
	if err != nil {
		return err
	}
	s.app = app

	return nil
}

func (s *ServiceCommand) Run() error {
	log.Infof("Starting dnsdivert service...")

	// A bind failure is fatal
	if err := s.app.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.API.Enable {
		g.Go(func() error {
			return s.runAPIServer(gctx)
		})
	} else {
		log.Infof("Control API is disabled")
	}

	g.Go(func() error {
		s.signalLoop(gctx, sigChan)
		cancel()
		return nil
	})

	log.Infof("Service started successfully. Send SIGHUP to reload the whitelist and allowed clients")

	err := g.Wait()
	if err != nil {
		log.Errorf("Service component failed: %v", err)
	}

	s.shutdown()
	return err
}

// signalLoop handles signals until a termination signal arrives or ctx is done.
func (s *ServiceCommand) signalLoop(ctx context.Context, sigChan <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				log.Infof("Received SIGHUP signal, reloading configuration...")
				if err := s.app.Reload(); err != nil {
					log.Errorf("Failed to reload configuration: %v", err)
				} else {
					log.Infof("Configuration reloaded successfully")
				}

			case syscall.SIGINT, syscall.SIGTERM:
				log.Infof("Received signal %v, shutting down...", sig)
				return
			}
		}
	}
}

// runAPIServer serves the control API, restarting it if it crashes.
func (s *ServiceCommand) runAPIServer(ctx context.Context) error {
	bindAddr := s.cfg.API.ListenAddr
	log.Infof("Starting control API on %s (private networks only)", bindAddr)

	router := api.NewRouter(s.ctx.ConfigPath, s.app, s.app.ConfigHasher(), s.app.Proxy())

	runner := NewRestartableRunner(RunnerConfig{
		Name:           "API server",
		MaxRestarts:    10,
		RestartBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}, func(runCtx context.Context) error {
		return api.NewServer(bindAddr, router).Run(runCtx)
	})

	return runner.Run(ctx)
}

// shutdown drains the proxy within its grace period.
func (s *ServiceCommand) shutdown() {
	log.Infof("Shutting down dnsdivert service...")

	grace := time.Duration(s.cfg.Server.ShutdownGraceSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), grace+time.Second)
	defer cancel()

	if err := s.app.Stop(ctx); err != nil {
		log.Errorf("Failed to stop DNS proxy: %v", err)
	}

	log.Infof("Service stopped successfully")
}
