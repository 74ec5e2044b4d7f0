// Command pdf-worker runs one transform request read from stdin and writes
// its progress and result frames to stdout. It exits after the request.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Lllllllleong/docpipeline/internal/config"
	"github.com/Lllllllleong/docpipeline/internal/logging"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/worker"
)

var (
	executor *worker.Executor
	once     sync.Once
)

func init() {
	// stdout carries frames, so logs go to stderr.
	logger := logging.New(os.Stderr, config.GetEnv("DOCPIPE_LOG_LEVEL", "info"))
	slog.SetDefault(logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	once.Do(func() {
		executor = worker.NewExecutor(pdf.NewLibrary(), slog.Default())
	})

	if err := executor.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		slog.Error("Failed to write worker response.", "error", err)
		os.Exit(1)
	}
}
