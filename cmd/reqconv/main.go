package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/robbyt/fantasy-adapters/reqconv/batch"
	"github.com/robbyt/fantasy-adapters/reqconv/config"
	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/format/gemini"
	"github.com/robbyt/fantasy-adapters/reqconv/format/openai"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/pipeline"
	"github.com/robbyt/fantasy-adapters/reqconv/schema"
	"github.com/robbyt/fantasy-adapters/reqconv/validate"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML config file")
		from       = flag.String("from", "", "Source format: claude, openai, gemini or auto (overrides config)")
		to         = flag.String("to", "", "Destination format: claude, openai or gemini (overrides config)")
		input      = flag.String("input", "", "Input directory or file (overrides config)")
		output     = flag.String("output", "", "Output directory; omit with a single input file to write to stdout")
		workers    = flag.Int("workers", 0, "Number of files converted at once (overrides config)")
		suffix     = flag.String("suffix", "", "Suffix inserted before .json in output file names")
		reportPath = flag.String("report", "", "Write a JSON run report to this path")
		strict     = flag.Bool("strict", false, "Fail conversions that produce validator warnings")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	cfg.Merge(&config.Config{
		From:    format.Format(*from),
		To:      format.Format(*to),
		Input:   *input,
		Output:  *output,
		Workers: *workers,
		Suffix:  *suffix,
		Report:  *reportPath,
		Strict:  *strict,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Usage: reqconv -input <dir|file> [-output <dir>] [-from <format>] [-to <format>]")
		flag.PrintDefaults()
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	p, err := newPipeline(&cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	if cfg.Output == "" {
		os.Exit(convertToStdout(p, cfg.Input, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := convertTree(ctx, p, &cfg, logger)
	stop()
	os.Exit(code)
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	registry := pipeline.NewRegistry()
	registry.RegisterImporter(openai.NewImporter(openai.WithArgumentRepair(cfg.Repair())))
	if cfg.GeminiJSONSchema {
		registry.RegisterExporter(gemini.NewExporter(gemini.WithParametersJSONSchema()))
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithStrict(cfg.Strict),
		pipeline.WithValidateOptions(validate.WithSchemaChecks(cfg.SchemaChecksEnabled())),
	}
	if len(cfg.Fixups) > 0 {
		fixups := cfg.Fixups
		opts = append(opts, pipeline.WithTransform(func(c *ir.Conversation) ir.Warnings {
			return schema.ApplyFixups(c, fixups)
		}))
	}
	return registry.Pair(cfg.From, cfg.To, opts...)
}

// convertToStdout converts a single file and prints the document.
func convertToStdout(p *pipeline.Pipeline, path string, logger *slog.Logger) int {
	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	if info.IsDir() {
		log.Fatal("Input is a directory: -output is required")
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	result, err := p.Convert(doc)
	if err != nil {
		failure := pipeline.Classify(err)
		logger.Error("conversion failed", "file", path, "kind", failure.Kind, "path", failure.Path, "error", failure.Message)
		return 1
	}
	for _, w := range result.Warnings {
		logger.Warn("conversion warning", "file", path, "path", w.Path, "message", w.Message)
	}

	if _, err := os.Stdout.Write(append(result.Document, '\n')); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	return 0
}

func convertTree(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger) int {
	runner := batch.NewRunner(p,
		batch.WithWorkers(cfg.Workers),
		batch.WithSuffix(cfg.Suffix),
		batch.WithLogger(logger),
	)

	report, runErr := runner.Run(ctx, cfg.Input, cfg.Output)
	if report != nil && cfg.Report != "" {
		if err := batch.WriteReport(cfg.Report, report); err != nil {
			logger.Error("failed to write report", "path", cfg.Report, "error", err)
		}
	}
	if runErr != nil {
		logger.Error("batch failed", "error", runErr)
		return 1
	}

	fmt.Printf("Converted %d of %d files (%s)\n", report.Converted, len(report.Files), pipeline.Pair{From: report.From, To: report.To})
	if report.Failed > 0 {
		return 1
	}
	return 0
}
