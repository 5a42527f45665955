package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/async"
	"github.com/casadona/deidpipe/internal/blobstore"
	"github.com/casadona/deidpipe/internal/common"
	"github.com/casadona/deidpipe/internal/entity"
	"github.com/casadona/deidpipe/internal/extract"
	"github.com/casadona/deidpipe/internal/metadata"
	"github.com/casadona/deidpipe/internal/pipeline"
	"github.com/casadona/deidpipe/internal/redact"
	"github.com/casadona/deidpipe/internal/report"
)

func main() {
	app := &cli.App{
		Name:  "deidpipe",
		Usage: "Document de-identification pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (overlays environment variables)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Submit files to the pipeline and wait for the runs to drain",
				ArgsUsage: "FILE [FILE...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "media-type",
						Usage: "Declared media type for all files (default: guessed from extension)",
					},
					&cli.BoolFlag{
						Name:  "enrich",
						Usage: "Run entity enrichment after the pipeline completes",
					},
				},
				Action: submitCommand,
			},
			{
				Name:      "resume",
				Usage:     "Re-run the pipeline for a parked job",
				ArgsUsage: "JOB_ID",
				Action:    resumeCommand,
			},
			{
				Name:  "reconcile",
				Usage: "Rebuild inventory tables from blob-store listings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scope",
						Usage: "raw | processed | deidentified | all",
						Value: "all",
					},
				},
				Action: reconcileCommand,
			},
			{
				Name:   "enrich",
				Usage:  "Run entity enrichment over all jobs with redacted text",
				Action: enrichCommand,
			},
			{
				Name:      "search",
				Usage:     "List deidentified text by filename substring",
				ArgsUsage: "[SUBSTRING]",
				Action:    searchCommand,
			},
			{
				Name:      "fetch",
				Usage:     "Print the redacted text stored for a filename",
				ArgsUsage: "FILENAME",
				Action:    fetchCommand,
			},
			{
				Name:  "export",
				Usage: "Export inventory tables to an XLSX workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output path",
						Value:   "inventory.xlsx",
					},
				},
				Action: exportCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// env holds everything a command needs, with a single Close for teardown.
type env struct {
	cfg    *common.Config
	logger *slog.Logger
	blobs  *blobstore.BadgerStore
	sink   metadata.Sink
	orch   *pipeline.Orchestrator
	pool   *async.Pool
}

func (e *env) Close() {
	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			e.logger.Warn("close metadata sink", "error", err)
		}
	}
	if e.blobs != nil {
		if err := e.blobs.Close(); err != nil {
			e.logger.Warn("close blob store", "error", err)
		}
	}
}

func setup(c *cli.Context) (*env, error) {
	logger := slog.Default()

	cfg := common.LoadConfig()
	if path := c.String("config"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	blobs, err := blobstore.OpenBadger(cfg.BlobStore.Path, cfg.BlobStore.InMemory, logger)
	if err != nil {
		return nil, err
	}

	var sink metadata.Sink
	switch cfg.Metadata.Driver {
	case "postgres":
		sink, err = metadata.OpenPostgres(c.Context, metadata.PostgresConfig{
			DSN:             cfg.Metadata.DSN,
			MaxConns:        cfg.Metadata.MaxConns,
			MaxConnLifetime: cfg.Metadata.MaxConnLifetime,
			MaxConnIdleTime: cfg.Metadata.MaxConnIdleTime,
			DialTimeout:     cfg.Metadata.DialTimeout,
		}, logger)
	default:
		sink, err = metadata.OpenSQLite(c.Context, cfg.Metadata.DSN, logger)
	}
	if err != nil {
		blobs.Close()
		return nil, err
	}

	registry := extract.NewRegistry(logger)
	registry.Register("image/*", extract.NewTesseractExtractor(cfg.Extractor.TesseractCmd, logger))
	if cfg.Extractor.ServiceURL != "" {
		var opts []extract.ServiceOption
		if cfg.Extractor.NormalizeWhitespace {
			opts = append(opts, extract.WithNormalizeWhitespace())
		}
		opts = append(opts, extract.WithTimeout(cfg.Extractor.Timeout))
		svc := extract.NewServiceExtractor(cfg.Extractor.ServiceURL, logger, opts...)
		for _, mt := range constants.DocumentMediaTypes {
			registry.Register(mt, svc)
		}
	}

	redactor := redact.NewServiceRedactor(cfg.Redactor.ServiceURL, cfg.Redactor.Timeout, logger)

	var entities entity.Extractor
	if cfg.Entity.BaseURL != "" && cfg.Entity.Model != "" {
		entities, err = entity.NewLLMExtractor(cfg.Entity.BaseURL, cfg.Entity.Model, cfg.Entity.APIKey, logger)
		if err != nil {
			logger.Warn("entity extractor unavailable", "error", err)
			entities = nil
		}
	}

	pool, err := async.NewPool(cfg.Pipeline.Workers, logger)
	if err != nil {
		sink.Close()
		blobs.Close()
		return nil, err
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Deps{
		Blobs:          blobs,
		Sink:           sink,
		Extractors:     registry,
		Redactor:       redactor,
		Entities:       entities,
		Spawner:        pool,
		Logger:         logger,
		EntityCategory: cfg.Entity.Category,
	})
	if err != nil {
		sink.Close()
		blobs.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, blobs: blobs, sink: sink, orch: orch, pool: pool}, nil
}

func submitCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one file is required", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	type result struct {
		path string
		id   uuid.UUID
	}
	var accepted []result
	for _, path := range c.Args().Slice() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		mediaType := c.String("media-type")
		if mediaType == "" {
			mediaType = mime.TypeByExtension(filepath.Ext(path))
		}
		id, err := e.orch.Submit(c.Context, raw, filepath.Base(path), mediaType)
		if err != nil {
			e.logger.Error("submit rejected", "path", path, "error", err)
			continue
		}
		accepted = append(accepted, result{path: path, id: id})
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := e.pool.Drain(drainCtx); err != nil {
		return err
	}

	for _, r := range accepted {
		job, err := e.orch.Job(r.id)
		if err != nil {
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", r.id, job.CurrentStage(), r.path)
		if c.Bool("enrich") && job.CurrentStage() == constants.StageDone {
			if err := e.orch.EnrichJob(c.Context, r.id); err != nil {
				e.logger.Error("enrich failed", "job_id", r.id, "error", err)
			}
		}
	}
	return nil
}

func resumeCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one job id is required", 2)
	}
	id, err := uuid.Parse(c.Args().First())
	if err != nil {
		return cli.Exit("invalid job id: "+c.Args().First(), 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.orch.Restore(c.Context); err != nil {
		return err
	}
	if err := e.orch.Run(c.Context, id); err != nil {
		return err
	}
	job, err := e.orch.Job(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", id, job.CurrentStage())
	return nil
}

func reconcileCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	scope := c.String("scope")
	if scope == "all" {
		e.orch.ReconcileAll(c.Context)
		return nil
	}
	return e.orch.ReconcileMetadata(c.Context, scope)
}

func enrichCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.orch.Restore(c.Context); err != nil {
		return err
	}
	return e.orch.EnrichAll(c.Context)
}

func searchCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	matches, err := e.orch.SearchRedacted(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	for _, obj := range matches {
		fmt.Printf("%s\t%d\t%s\n", obj.Key, obj.Size, obj.CreatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func fetchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one filename is required", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	text, err := e.orch.FetchRedacted(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(text)
	return err
}

func exportCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := report.NewService(e.sink, e.logger)
	data, err := svc.ExportInventoryXLSX(c.Context)
	if err != nil {
		return err
	}
	out := c.String("out")
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
	return nil
}
