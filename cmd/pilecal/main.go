// Command pilecal calibrates pile model parameters against one load test.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/calibration"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/report"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/logger"
)

type options struct {
	configPath string
	casePath   string
	xlsxPath   string
	reportPath string
	pdfPath    string
	resultPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "configuration file (YAML)")
	flag.StringVar(&opts.casePath, "case", "", "load test case file (YAML)")
	flag.StringVar(&opts.xlsxPath, "xlsx", "", "load test workbook (xlsx)")
	flag.StringVar(&opts.reportPath, "report", "", "write an xlsx report to this path")
	flag.StringVar(&opts.pdfPath, "pdf", "", "write a PDF report to this path")
	flag.StringVar(&opts.resultPath, "out", "", "write the JSON result to this path instead of stdout")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "pilecal: load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "pilecal: %v\n", err)
		logger.Sync()
		if calibration.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger.SetDefault(logger.NewWithFormat(cfg.Log.Level, cfg.Log.Format, os.Stderr))
	log := logger.Default.Desugar()

	c, err := loadCase(opts)
	if err != nil {
		return err
	}

	solver, closeSolver, err := simulation.SolverFromConfig(cfg.Solver)
	if err != nil {
		return err
	}
	defer closeSolver()

	runner, err := calibration.NewRunnerFromConfig(cfg, solver, log)
	if err != nil {
		return err
	}
	runner = runner.WithGenerationHook(func(stats calibration.GenerationStats) {
		log.Info("generation",
			zap.Int("generation", stats.Generation),
			zap.Float64("best_fitness", stats.BestFitness),
			zap.Float64("std_dev", stats.StdDev),
			zap.Int("failures", stats.Failures))
	})

	log.Info("calibrating",
		zap.String("case", c.Record.Name()),
		zap.Strings("parameters", runner.Space().Names()),
		zap.String("solver", cfg.Solver.Backend))
	result, runErr := runner.Run(ctx, c.Record, c.Simulation)
	if result == nil {
		return runErr
	}

	if err := writeResult(opts.resultPath, result); err != nil {
		return err
	}
	if err := writeReports(opts, c, result); err != nil {
		return err
	}
	log.Info("calibration finished",
		zap.String("termination", string(result.Termination)),
		zap.String("reason", result.Reason),
		zap.Float64("fitness", result.Fitness),
		zap.Int("evaluations", result.Evaluations))
	return runErr
}

func loadCase(opts options) (*loadtest.Case, error) {
	switch {
	case opts.casePath != "" && opts.xlsxPath != "":
		return nil, errors.New("use either -case or -xlsx")
	case opts.casePath != "":
		return loadtest.LoadFile(opts.casePath)
	case opts.xlsxPath != "":
		f, err := os.Open(opts.xlsxPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		doc, err := loadtest.ReadWorkbook(f)
		if err != nil {
			return nil, err
		}
		return doc.Build()
	default:
		logger.Info("no case given, using the O'Neill (1982) reference load test")
		return loadtest.ONeill1982(), nil
	}
}

func writeResult(path string, result *calibration.Result) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func writeReports(opts options, c *loadtest.Case, result *calibration.Result) error {
	if opts.reportPath == "" && opts.pdfPath == "" {
		return nil
	}
	rep, err := report.New("", c.Document(), result)
	if err != nil {
		return err
	}
	if opts.reportPath != "" {
		if err := writeFile(opts.reportPath, rep.WriteWorkbook); err != nil {
			return fmt.Errorf("write xlsx report: %w", err)
		}
	}
	if opts.pdfPath != "" {
		if err := writeFile(opts.pdfPath, rep.WritePDF); err != nil {
			return fmt.Errorf("write pdf report: %w", err)
		}
	}
	return nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
