package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/progress"
)

// Executor performs transforms on the worker side of the protocol.
type Executor struct {
	lib    *pdf.Library
	logger *slog.Logger
}

// NewExecutor creates an Executor backed by lib.
func NewExecutor(lib *pdf.Library, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{lib: lib, logger: logger}
}

// Serve handles exactly one request read from r and writes its events to w.
// Request errors are reported to the issuer as a Failure event; the returned
// error is non-nil only when w can no longer be written.
func (e *Executor) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	emit := func(ev models.Event) error {
		payload, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		return WriteFrame(w, payload)
	}
	fail := func(message string) error {
		return emit(models.Failure{Message: message})
	}

	payload, err := NewFrameDecoder(r).ReadFrame()
	if err != nil {
		return fail(fmt.Sprintf("failed to read request: %v", err))
	}
	req, err := DecodeRequest(payload)
	if err != nil {
		return fail(fmt.Sprintf("failed to decode request: %v", err))
	}

	logCtx := e.logger.With("kind", req.Kind())
	logCtx.Debug("Worker received request.")

	var writeErr error
	report := func(percent int) {
		if writeErr != nil {
			return
		}
		writeErr = emit(models.Progress{Percent: percent})
	}

	terminal := e.execute(ctx, req, report)
	if writeErr != nil {
		return writeErr
	}
	if f, ok := terminal.(models.Failure); ok {
		logCtx.Warn("Worker request failed.", "error", f.Message)
	} else {
		logCtx.Debug("Worker request complete.")
	}
	return emit(terminal)
}

// execute runs req and returns its terminal event. Panics inside the
// document library become Failure events.
func (e *Executor) execute(ctx context.Context, req models.Request, report func(int)) (terminal models.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Worker panic recovered.", "panic", r, "stack", string(debug.Stack()))
			terminal = models.Failure{Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	var (
		ev  models.Event
		err error
	)
	switch r := req.(type) {
	case models.MergeRequest:
		ev, err = e.merge(ctx, r, report)
	case models.SplitRequest:
		ev, err = e.split(ctx, r, report)
	case models.CompressRequest:
		ev, err = e.compress(ctx, r, report)
	default:
		err = fmt.Errorf("unsupported request %T", req)
	}
	if err != nil {
		return models.Failure{Message: err.Error()}
	}
	return ev
}

// open decrypts and rotates one input so it can be combined freely.
func (e *Executor) open(in models.InputDocument) ([]byte, error) {
	data := in.Data
	if in.Passphrase != "" {
		plain, err := e.lib.Decrypt(data, in.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Name, err)
		}
		data = plain
	}
	rotated, err := e.lib.Rotate(data, in.Rotation)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Name, err)
	}
	return rotated, nil
}

func (e *Executor) merge(ctx context.Context, req models.MergeRequest, report func(int)) (models.Event, error) {
	var acc []byte
	for i, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.open(in)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = data
		} else if acc, err = e.lib.Merge([][]byte{acc, data}); err != nil {
			return nil, fmt.Errorf("failed to append %s: %w", in.Name, err)
		}
		report(progress.Percent(i+1, len(req.Inputs)))
	}
	return models.Success{Data: acc, ByteCount: len(acc)}, nil
}

func (e *Executor) split(ctx context.Context, req models.SplitRequest, report func(int)) (models.Event, error) {
	data, err := e.open(req.Input)
	if err != nil {
		return nil, err
	}
	pageCount, err := e.lib.PageCount(data, pdf.Options{Relaxed: true})
	if err != nil {
		return nil, err
	}
	for _, p := range req.Pages {
		if p > pageCount {
			return nil, fmt.Errorf("page %d is out of range (document has %d pages)", p, pageCount)
		}
	}

	if req.Mode == models.SplitSingle {
		out, err := e.lib.Collect(data, req.Pages)
		if err != nil {
			return nil, err
		}
		report(100)
		return models.Success{Data: out, ByteCount: len(out)}, nil
	}

	files := make([]models.NamedFile, 0, len(req.Pages))
	for i, p := range req.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.lib.Collect(data, []int{p})
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", p, err)
		}
		files = append(files, models.NamedFile{
			Name: fmt.Sprintf("%s_page_%d.pdf", req.BaseName, p),
			Data: out,
		})
		report(progress.Percent(i+1, len(req.Pages)))
	}
	return models.SuccessBatch{Files: files}, nil
}

func (e *Executor) compress(ctx context.Context, req models.CompressRequest, report func(int)) (models.Event, error) {
	parts := make([][]byte, 0, len(req.Pages))
	for i, img := range req.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := e.lib.ImagesToPDF([][]byte{img})
		if err != nil {
			return nil, fmt.Errorf("failed to place page %d: %w", i+1, err)
		}
		parts = append(parts, page)
		report(progress.Percent(i+1, len(req.Pages)))
	}
	out, err := e.lib.Merge(parts)
	if err != nil {
		return nil, err
	}
	return models.Success{Data: out, ByteCount: len(out)}, nil
}
