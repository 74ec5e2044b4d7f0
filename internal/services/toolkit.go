// Package services implements the document tools on top of sessions, the
// worker dispatcher and the document library.
package services

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Lllllllleong/docpipeline/internal/ocr"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/session"
	"github.com/Lllllllleong/docpipeline/internal/worker"
)

// ToolkitConfig holds the collaborators of every tool.
type ToolkitConfig struct {
	Library    *pdf.Library
	Renderer   pdf.Renderer
	Inspector  *Inspector
	Dispatcher *worker.Dispatcher
	// OCR is optional; the OCR tool fails without it.
	OCR         ocr.Engine
	Concurrency int
	Logger      *slog.Logger
}

// Toolkit runs the document tools.
type Toolkit struct {
	lib         *pdf.Library
	renderer    pdf.Renderer
	inspector   *Inspector
	dispatcher  *worker.Dispatcher
	engine      ocr.Engine
	concurrency int
	logger      *slog.Logger
}

// NewToolkit creates a Toolkit.
func NewToolkit(config ToolkitConfig) (*Toolkit, error) {
	if config.Library == nil || config.Renderer == nil || config.Inspector == nil || config.Dispatcher == nil {
		return nil, fmt.Errorf("library, renderer, inspector and dispatcher must be set")
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Toolkit{
		lib:         config.Library,
		renderer:    config.Renderer,
		inspector:   config.Inspector,
		dispatcher:  config.Dispatcher,
		engine:      config.OCR,
		concurrency: config.Concurrency,
		logger:      config.Logger,
	}, nil
}

// fail logs a tool failure and records it on the ticket.
func (k *Toolkit) fail(ticket *session.Ticket, logCtx *slog.Logger, message string, originalErr error) error {
	err := fmt.Errorf("%s: %w", message, originalErr)
	logCtx.Error("Tool failed.", "error", err)
	return ticket.Fail(err)
}

var unsafeNameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// baseName derives a safe output name stem from an input file name.
func baseName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	sanitized := strings.Trim(unsafeNameRegex.ReplaceAllString(base, "_"), "_.")

	const maxLength = 100
	if len(sanitized) > maxLength {
		sanitized = strings.Trim(sanitized[:maxLength], "_.")
	}
	if sanitized == "" {
		return "document"
	}
	return sanitized
}
