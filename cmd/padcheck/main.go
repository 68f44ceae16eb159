package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/23skdu/longbow-padcheck/internal/config"
	"github.com/23skdu/longbow-padcheck/internal/device"
	"github.com/23skdu/longbow-padcheck/internal/harness"
	"github.com/23skdu/longbow-padcheck/internal/layout"
	"github.com/23skdu/longbow-padcheck/internal/logger"
	"github.com/23skdu/longbow-padcheck/internal/metrics"
	"github.com/23skdu/longbow-padcheck/internal/report"
	"github.com/23skdu/longbow-padcheck/internal/shader"
)

func main() {
	cfg := config.Default()

	flag.IntVar(&cfg.Columns, "columns", cfg.Columns, "Matrix column count (2-4)")
	flag.IntVar(&cfg.Matrices, "matrices", cfg.Matrices, "Number of matrices in the storage array")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Device backend: wgpu or emulator")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	flag.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	flag.StringVar(&cfg.FlightAddr, "flight", "", "Arrow Flight host:port to DoPut results to")
	skip := flag.String("skip", "", "Comma separated array slots the program must not write (guard self-test)")
	dump := flag.Bool("dump", false, "Print the generated WGSL program and exit")
	flag.Parse()

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Log.With("padcheck")

	var err error
	if cfg.Skip, err = config.ParseSkip(*skip); err != nil {
		log.Fatal("invalid -skip", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", err)
	}

	if *dump {
		prog, err := shader.Generate(cfg.Params(), shader.WithSkip(cfg.Skip...))
		if err != nil {
			log.Fatal("generate program", err)
		}
		fmt.Print(prog.Source)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := device.Open(cfg.GetBackend())
	if err != nil {
		log.Fatal("open backend", err, "backend", cfg.GetBackend())
	}

	err = run(ctx, cfg, backend, log)
	backend.Close()
	writeMetrics(cfg, log)
	if err != nil {
		log.Fatal("layout check failed", err, "shape", cfg.Params().String(), "backend", cfg.GetBackend())
	}
}

// run performs one check against backend. Without -skip a mismatch is an
// error; with -skip only a mismatch confined to the skipped slots passes.
func run(ctx context.Context, cfg config.Config, backend device.Backend, log *logger.Logger) error {
	var opts []harness.Option
	if cfg.FlightAddr != "" {
		pub, err := report.NewFlightPublisher(cfg.FlightAddr)
		if err != nil {
			return err
		}
		opts = append(opts, harness.WithPublisher(pub))
	}

	h, err := harness.New(cfg, backend, opts...)
	if err != nil {
		return err
	}

	res, err := h.Run(ctx)
	if !cfg.FaultInjection() {
		return err
	}

	// With skipped slots the comparison must fail, and only on those slots.
	if err != nil && !errors.Is(err, layout.ErrLayoutMismatch) {
		return err
	}
	if err := res.CheckSkipped(); err != nil {
		return err
	}
	log.Info("guard detected the skipped writes", "skip", cfg.Skip, "mismatches", len(res.Mismatches()))
	return nil
}

func writeMetrics(cfg config.Config, log *logger.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		os.Exit(1)
	}
}
