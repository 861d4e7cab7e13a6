// Command pilecald serves calibration runs over HTTP and the FE solver over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/runstore"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/server"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file (YAML)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	logger.SetDefault(logger.NewWithFormat(cfg.Log.Level, cfg.Log.Format, os.Stdout))
	defer logger.Sync()

	if err := serve(cfg); err != nil {
		logger.Error("daemon stopped with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	log := logger.Default.Desugar()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close run store", "error", err)
		}
	}()

	solver, closeSolver, err := simulation.SolverFromConfig(cfg.Solver)
	if err != nil {
		return err
	}
	defer closeSolver()

	notifier := server.NewNotifier(cfg.Server.WebhookRetries, log)
	executor := server.NewExecutor(store, cfg, solver, notifier, log)

	// the gRPC endpoint always exposes the in-process model so other daemons can offload to it
	grpcServer := server.NewGRPCServer(simulation.NewLocalSolver(simulation.OptionsFromConfig(cfg.Solver)), log)
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHTTPServer(store, executor, cfg.Server, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs still active at shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*runstore.Store, error) {
	if cfg.Driver == "" || cfg.Driver == "none" {
		return runstore.New().WithLogger(log), nil
	}
	p, err := runstore.OpenSQL(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	store, err := runstore.Open(ctx, p)
	if err != nil {
		p.Close()
		return nil, err
	}
	logger.Info("run store opened", "driver", cfg.Driver)
	return store.WithLogger(log), nil
}
