// Package main is the entry point of the Bulwark resilience core.
// It initializes the Kratos application and the maintenance schedule.
package main

import (
	"context"
	"flag"
	"os"

	"Bulwark/internal/conf"
	"Bulwark/internal/metrics"
	zapLogger "Bulwark/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "Bulwark"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, jobs *MaintenanceJobs) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.AfterStart(func(context.Context) error {
			jobs.Start()
			return nil
		}),
		kratos.BeforeStop(func(ctx context.Context) error {
			jobs.Stop(ctx)
			return nil
		}),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	// Add context fields to logger
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	helper := log.NewHelper(logger)
	helper.Infow(
		"msg", "Bulwark resilience core starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.env", bc.Log.Env,
		"log.output_file", bc.Log.OutputFile,
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		helper.Warnw("msg", "failed to register prometheus collectors", "error", err)
	}

	app, cleanup, err := wireApp(bc.Data, bc.Audit, bc.Breaker, bc.Recovery, bc.Monitor, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
