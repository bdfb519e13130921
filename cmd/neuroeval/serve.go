package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/api"
	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/catalog"
	"github.com/gestor-t/neuroeval/internal/config"
	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
	"github.com/gestor-t/neuroeval/internal/feedback"
	"github.com/gestor-t/neuroeval/internal/infrastructure/redpanda"
	"github.com/gestor-t/neuroeval/internal/observability/metrics"
	"github.com/gestor-t/neuroeval/internal/observability/tracing"
	"github.com/gestor-t/neuroeval/internal/patient"
	"github.com/gestor-t/neuroeval/pkg/circuitbreaker"
	"github.com/gestor-t/neuroeval/pkg/workerpool"
)

const serviceName = "neuroeval"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.Load(cfg.Catalog.Path)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tp, err := tracing.Init(ctx, cfg.TracingProvider(version))
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	instruments, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	checks := map[string]api.ReadyCheck{}

	var patients patient.Directory
	if cfg.Patients.DatabaseURL != "" {
		db, err := pgxpool.New(ctx, cfg.Patients.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		logger.Info("connected to patient database")
		patients = patient.NewPostgresDirectory(db, logger)
		checks["patients"] = db.Ping
	} else {
		logger.Info("no patient database configured, using demo patients")
		patients = patient.NewMemoryDirectory(patient.SeedPatients())
	}

	breakers := circuitbreaker.NewManager(logger, circuitbreaker.WithStateListener(m.BreakerStateChanged))
	checks["assistant"] = func(context.Context) error {
		var open []string
		for _, s := range breakers.GetHealthStatus() {
			if !s.Healthy {
				open = append(open, s.Name)
			}
		}
		if len(open) > 0 {
			return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
		}
		return nil
	}

	var gateway assistant.Gateway
	if cfg.OfflineAssistant() {
		gateway = assistant.NewStub(logger)
	} else {
		client, err := assistant.NewClient(cfg.AssistantGateway(), breakers, logger, assistant.WithObserver(m))
		if err != nil {
			return fmt.Errorf("assistant client: %w", err)
		}
		gateway = client
	}

	pool := workerpool.New(cfg.WorkerPool(), logger)
	pool.Start()
	defer pool.Stop()
	checks["workers"] = func(context.Context) error {
		if !pool.IsHealthy() {
			return errors.New("job queue backing up")
		}
		return nil
	}

	var publisher evaluation.EventPublisher = evaluation.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := redpanda.NewProducer(cfg.Producer(), logger, redpanda.WithResultHook(m.EventPublished))
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			producer.Close(closeCtx)
		}()
		publisher = producer
		checks["events"] = producer.Ping
		logger.Info("publishing workflow events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	registry := evaluation.NewRegistry(evaluation.Deps{
		Catalog:          instruments,
		Patients:         patients,
		Synthesizer:      gateway,
		Dispatcher:       pool,
		Publisher:        publisher,
		Observer:         m,
		Logger:           logger,
		SynthesisTimeout: cfg.Assistant.RequestTimeout,
	}, cfg.DefaultLanguage())
	defer registry.CloseAll()

	router := api.NewRouter(api.Options{
		ServiceName:     serviceName,
		Version:         version,
		Logger:          logger,
		Registry:        registry,
		Catalog:         instruments,
		Patients:        patients,
		Gateway:         gateway,
		Feedback:        feedback.NewStore(feedback.SeedEntries()),
		APIKeys:         cfg.ClientKeys(),
		CORSOrigins:     cfg.Server.CORSOrigins,
		DefaultLanguage: cfg.DefaultLanguage(),
		ReadyChecks:     checks,
		Metrics:         metrics.Handler(reg),
	})
	if len(cfg.ClientKeys()) == 0 {
		logger.Warn("no API keys configured, /api/v1 is unauthenticated")
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting neuroeval API",
			zap.String("addr", server.Addr),
			zap.String("version", version),
			zap.Bool("offline_assistant", cfg.OfflineAssistant()),
			zap.Bool("tracing", tp.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
