package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Lllllllleong/docpipeline/internal/models"
)

// Dispatcher issues requests to freshly spawned workers.
type Dispatcher struct {
	spawner Spawner
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. A zero timeout disables the deadline.
func NewDispatcher(spawner Spawner, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{spawner: spawner, timeout: timeout, logger: logger}
}

type readResult struct {
	ev  models.Event
	err error
}

// Run sends req to a new worker and blocks until its terminal event.
// Progress events are forwarded to onProgress (which may be nil); values
// lower than one already forwarded are dropped so observers only ever see
// non-decreasing progress.
//
// The buffers referenced by req are owned by the worker until Run returns;
// the caller must not modify them in the meantime. The worker is torn down
// before Run returns on every path.
func (d *Dispatcher) Run(ctx context.Context, req models.Request, onProgress func(int)) (models.Event, error) {
	payload, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	logCtx := d.logger.With("kind", req.Kind())
	proc, err := d.spawner.Spawn(ctx)
	if err != nil {
		logCtx.Error("Failed to spawn worker.", "error", err)
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}
	defer func() {
		if err := proc.Terminate(); err != nil {
			logCtx.Warn("Failed to terminate worker.", "error", err)
		}
	}()

	// Reading runs on its own goroutine so cancellation is observed even
	// while the worker is busy. stop unblocks it once Run returns.
	stop := make(chan struct{})
	defer close(stop)
	events := make(chan readResult)
	go func() {
		dec := NewFrameDecoder(proc.Stdout())
		for {
			frame, err := dec.ReadFrame()
			var res readResult
			if err != nil {
				res.err = err
			} else {
				res.ev, res.err = DecodeEvent(frame)
			}
			select {
			case events <- res:
			case <-stop:
				return
			}
			if res.err != nil || res.ev.Terminal() {
				return
			}
		}
	}()

	sendErr := make(chan error, 1)
	go func() {
		err := WriteFrame(proc.Stdin(), payload)
		if closeErr := proc.Stdin().Close(); err == nil {
			err = closeErr
		}
		sendErr <- err
	}()

	last := -1
	for {
		select {
		case <-ctx.Done():
			logCtx.Warn("Abandoning worker.", "error", ctx.Err())
			return nil, ctx.Err()
		case err := <-sendErr:
			if err != nil {
				logCtx.Error("Failed to send request to worker.", "error", err)
				return nil, fmt.Errorf("failed to send request: %w", err)
			}
		case res := <-events:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return nil, ErrNoTerminal
				}
				logCtx.Error("Failed to read worker event.", "error", res.err)
				return nil, fmt.Errorf("failed to read worker event: %w", res.err)
			}
			switch ev := res.ev.(type) {
			case models.Progress:
				if ev.Percent >= last {
					last = ev.Percent
					if onProgress != nil {
						onProgress(ev.Percent)
					}
				}
			case models.Failure:
				return nil, &TransformError{Kind: req.Kind(), Message: ev.Message}
			default:
				return ev, nil
			}
		}
	}
}

// RunDocument runs req and expects a single output document.
func (d *Dispatcher) RunDocument(ctx context.Context, req models.Request, onProgress func(int)) ([]byte, error) {
	ev, err := d.Run(ctx, req, onProgress)
	if err != nil {
		return nil, err
	}
	success, ok := ev.(models.Success)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, ev.Type())
	}
	return success.Data, nil
}

// RunBatch runs req and expects several output documents.
func (d *Dispatcher) RunBatch(ctx context.Context, req models.Request, onProgress func(int)) ([]models.NamedFile, error) {
	ev, err := d.Run(ctx, req, onProgress)
	if err != nil {
		return nil, err
	}
	batch, ok := ev.(models.SuccessBatch)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, ev.Type())
	}
	return batch.Files, nil
}
