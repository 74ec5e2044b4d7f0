package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/Lllllllleong/docpipeline/internal/config"
	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/history"
	"github.com/Lllllllleong/docpipeline/internal/logging"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/ocr"
	"github.com/Lllllllleong/docpipeline/internal/ocr/tesseract"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/pipeline"
	"github.com/Lllllllleong/docpipeline/internal/services"
	"github.com/Lllllllleong/docpipeline/internal/session"
	"github.com/Lllllllleong/docpipeline/internal/worker"
)

// app wires the process-wide collaborators for one command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *handles.Registry
	store     *pipeline.Store
	history   *history.Log
	inspector *services.Inspector
	toolkit   *services.Toolkit
}

func newApp(c *cli.Context) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	logger := logging.Setup(cfg.Log)

	lib := pdf.NewLibrary()
	renderer := pdf.NewPoppler(cfg.Renderer.Binary, lib)
	inspector := services.NewInspector(lib, renderer, services.InspectorConfig{
		PreviewWidth: cfg.Renderer.PreviewWidth,
		PrimedTTL:    cfg.Handles.TTL.Duration,
	}, logger)

	var spawner worker.Spawner
	switch cfg.Worker.Mode {
	case config.WorkerModeSubprocess:
		spawner = &worker.Subprocess{Binary: cfg.Worker.Binary, Logger: logger}
	default:
		spawner = &worker.InProcess{Executor: worker.NewExecutor(lib, logger)}
	}
	dispatcher := worker.NewDispatcher(spawner, cfg.Worker.Timeout.Duration, logger)

	toolkit, err := services.NewToolkit(services.ToolkitConfig{
		Library:     lib,
		Renderer:    renderer,
		Inspector:   inspector,
		Dispatcher:  dispatcher,
		OCR:         tesseract.New(ocr.Options{Languages: cfg.OCR.Languages, DPI: cfg.OCR.DPI}),
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  handles.NewRegistry(cfg.Handles.TTL.Duration),
		store:     pipeline.NewStore(),
		inspector: inspector,
		toolkit:   toolkit,
	}
	if cfg.History.MaxEntries > 0 {
		if a.history, err = history.Open(cfg.History.Path, cfg.History.MaxEntries); err != nil {
			return nil, err
		}
	}
	logger.Debug("Application initialized.", "workerMode", cfg.Worker.Mode, "concurrency", cfg.Worker.Concurrency)
	return a, nil
}

func (a *app) deps() session.Deps {
	return session.Deps{
		Inspector: a.inspector,
		Registry:  a.registry,
		Store:     a.store,
		History:   a.history,
		Logger:    a.logger,
	}
}

func (a *app) session(tool string) *session.Session {
	return session.New(tool, a.deps())
}

// load adds every path to s, unlocking encrypted files with password.
func (a *app) load(ctx context.Context, s *session.Session, paths []string, password string) ([]*models.Document, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	docs := make([]*models.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := s.Add(ctx, filepath.Base(path), data)
		if err != nil {
			return nil, err
		}
		if doc.Status == models.StatusLocked {
			if password == "" {
				return nil, fmt.Errorf("%s is password protected; pass --password", path)
			}
			ok, err := s.Unlock(ctx, doc, password)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%s: wrong password", path)
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// save writes the blob behind h to out, or to its own name when out is
// empty.
func (a *app) save(h handles.Handle, out string) error {
	blob, err := a.registry.MustResolve(h)
	if err != nil {
		return err
	}
	if out == "" {
		out = blob.Name
	}
	if err := os.WriteFile(out, blob.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	color.Green("Wrote %s (%s)", out, formatSize(len(blob.Data)))
	return nil
}

// progressBar prints progress on one stderr line.
func progressBar(label string) func(int) {
	c := color.New(color.FgCyan)
	return func(percent int) {
		c.Fprintf(os.Stderr, "\r%s %3d%%", label, percent)
		if percent >= 100 {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func formatSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
