package commands

import (
	"context"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bookbuilder/internal/compile"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
	"git.home.luguber.info/inful/bookbuilder/internal/pipeline"
	"git.home.luguber.info/inful/bookbuilder/internal/preview"
)

// PreviewCmd implements the 'preview' command.
type PreviewCmd struct {
	Port int `short:"p" help:"Listen port (default: preview.port from book.yaml)"`
}

func (p *PreviewCmd) Run(_ *Global, root *CLI) error {
	// Signal-based context for graceful shutdown.
	sigctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	// The watch loop rebuilds on every save; recording each of those to the
	// history store or publishing an event per save burst would bury the
	// real builds. The preview builder runs without either.
	builder := &pipeline.Builder{Config: cfg, Compiler: compile.New()}

	opts := preview.Options{Port: p.Port}
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		builder.Recorder = metrics.NewPrometheusRecorder(reg)
		opts.Registry = reg
	}

	return preview.New(cfg, builder, opts).Run(sigctx)
}
