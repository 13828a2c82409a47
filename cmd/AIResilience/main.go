// Package main is the entry point of the AI resilience gateway.
// It initializes the Kratos application with gRPC health, HTTP and scheduler servers.
package main

import (
	"context"
	"flag"
	"os"

	"AIResilience/internal/biz"
	"AIResilience/internal/conf"
	"AIResilience/internal/server"
	"AIResilience/internal/telemetry"
	pkglog "AIResilience/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "ai-resilience"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

// newApp assembles the servers. The event recorder and the Prometheus exporter are
// subscribed to the bus on construction and only need to be built.
func newApp(
	logger log.Logger,
	gs *grpc.Server,
	hs *http.Server,
	bus *biz.EventBus,
	scheduler *Scheduler,
	reporter *server.HealthReporter,
	_ *biz.EventRecorder,
	_ *telemetry.Exporter,
) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			bus,
			gs,
			hs,
			scheduler,
		),
		kratos.BeforeStop(func(context.Context) error {
			reporter.Shutdown()
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

	logger, flush, err := pkglog.NewLogger(bc.Log, Version)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer flush()

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
	)

	upstreams := make([]string, 0, len(bc.Upstreams))
	for name := range bc.Upstreams {
		upstreams = append(upstreams, name)
	}
	pkglog.NewLogHelper(logger).Startup("AI resilience gateway starting",
		"http.addr", bc.Server.Http.Addr,
		"grpc.addr", bc.Server.Grpc.Addr,
		"test_mode", bc.Synthetic != nil && bc.Synthetic.Enabled,
		"upstreams", upstreams,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc, bc.Server, bc.Data, bc.Admin, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
