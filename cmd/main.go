package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/forgemint/forgemint/internal/adapters/chain"
	"github.com/forgemint/forgemint/internal/adapters/http/api"
	"github.com/forgemint/forgemint/internal/adapters/ipfs"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	app "github.com/forgemint/forgemint/internal/app"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/config"
	"github.com/forgemint/forgemint/internal/domain/scoring"
	"github.com/forgemint/forgemint/internal/domain/webhook"
	"github.com/forgemint/forgemint/pkg/logger"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	signer, err := attest.NewSigner(cfg.EvaluatorKey, attest.Domain{
		Name:              cfg.DomainName,
		Version:           cfg.DomainVersion,
		ChainID:           cfg.ChainID,
		VerifyingContract: cfg.VerifyingContract,
	})
	if err != nil {
		os.Stderr.WriteString("failed to build signer: " + err.Error() + "\n")
		return
	}
	log.Info(ctx, "attestation signer ready", logger.String("evaluator", signer.Evaluator()))

	var store repository.Store
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			os.Stderr.WriteString("failed to connect to database: " + err.Error() + "\n")
			return
		}
		defer pg.Close()
		store = pg
		log.Info(ctx, "using postgres store")
	} else {
		store = repository.NewMemStore()
		log.Info(ctx, "using in-memory store")
	}

	users := repository.NewMemUserDirectory()
	repos := repository.NewMemRepoDirectory()
	publisher := ipfs.NewHTTPPublisher(
		ipfs.WithEndpoint(cfg.PinningEndpoint),
		ipfs.WithToken(cfg.PinningToken),
	)

	// Local mock collaborators until real registry bindings are configured.
	client := chain.NewMockClient()
	orch := chain.NewOrchestrator(store, users, repos, signer, publisher, client, client)

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithUserDirectory(users),
		app.WithRepoDirectory(repos),
		app.WithVerifier(webhook.NewVerifier(cfg.WebhookSecret)),
		app.WithSigner(signer),
		app.WithPublisher(publisher),
		app.WithCommitNFT(client),
		app.WithOrchestrator(orch),
		app.WithEngine(scoring.NewEngine(scoring.WithMintThreshold(cfg.MintThreshold))),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithScoringLimit(cfg.ScoringBatchLimit),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop(context.Background())

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc).Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater refreshes service-level gauges on an interval.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.Snapshot(ctx)
			metrics.UpdateContributionCount(stats.Contributions)
			metrics.UpdateQueueSize(stats.QueueDepth)
		}
	}
}
