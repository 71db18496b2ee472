package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"

	"pricewise-backend/internal/app"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/ingest"
	"pricewise-backend/internal/service"
	"pricewise-backend/pkg/configutil"
	"pricewise-backend/pkg/serviceutil"
	pkgtelemetry "pricewise-backend/pkg/telemetry"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pricewise.server")

const defaultPort = 8000

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the server configuration.")
	ingestNow := flag.String("ingest", "", "Ingest the given shop immediately on start.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	pkgtelemetry.InitSlog(*verbose)
	otelProviders, err := pkgtelemetry.SetupFromEnv(ctx, "pricewise-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer otelProviders.Shutdown(context.Background())
	pkgtelemetry.InstrumentPerfStats(ctx)

	cfg, err := configutil.ReadConfig[app.Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tel, err := telemetry.NewPrometheusAPI(telemetry.SlogAPI{}, registry)
	if err != nil {
		serviceutil.Fatal("setup metrics", err)
	}

	pipeline, err := app.Open(ctx, cfg, tel)
	if err != nil {
		serviceutil.Fatal("open app", err)
	}
	defer pipeline.Close()

	mux := http.NewServeMux()
	mux.Handle(service.NewCatalogServiceHandler(
		service.NewCatalogService(pipeline.Coordinator, pipeline.Store, tel),
		connect.WithInterceptors(
			serviceutil.NewConnectOtelInterceptor(),
			serviceutil.VerifyAccessTokenInterceptor(cfg.AdminToken, service.AdminProcedures...),
		),
	))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	cron := chrono.NewStandardCron(pipeline.Clock, tel)
	defer cron.Stop()
	err = schedule(ctx, cron, pipeline.Coordinator, cfg.Schedules)
	if err != nil {
		serviceutil.Fatal("schedule ingestion", err)
	}

	if *ingestNow != "" {
		go runIngestion(ctx, pipeline.Coordinator, *ingestNow)
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	err = serviceutil.StartHttpServer(ctx, port, mux)
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}

// schedule registers one cron job per shop, unknown shops fail startup.
func schedule(ctx context.Context, cron chrono.CronAPI, coordinator ingest.Coordinator, schedules map[string]string) error {
	for shopName, spec := range schedules {
		shopName := shopName
		_, err := coordinator.Registry().Lookup(shopName)
		if err != nil {
			return err
		}
		err = cron.Cron(spec, func() {
			runIngestion(ctx, coordinator, shopName)
		})
		if err != nil {
			return err
		}
		slog.Info("scheduled ingestion", "shop", shopName, "spec", spec)
	}
	return nil
}

// runIngestion starts a new trace for every run.
func runIngestion(ctx context.Context, coordinator ingest.Coordinator, shopName string) {
	ctx, span := tracer.Start(
		ctx,
		"ScheduledIngestion",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("shop", shopName)),
	)
	defer span.End()

	report, err := coordinator.Ingest(ctx, shopName)
	if err != nil {
		slog.Error("ingestion failed", "shop", shopName, "operation", report.OperationID, "err", err)
		return
	}
	slog.Info(
		"ingestion completed",
		"shop", report.Shop.Name,
		"operation", report.OperationID,
		"processed", report.Processed,
		"total", report.Total,
	)
}
