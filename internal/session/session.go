// Package session drives the documents of one tool run: their state
// machine, the handles of their outputs and the pipeline handoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Lllllllleong/docpipeline/internal/archive"
	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/history"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pipeline"
)

var (
	// ErrStaleSession means a result arrived after the session was reset.
	ErrStaleSession = errors.New("session was reset before the result arrived")
	// ErrUnsupportedHandoff means the pipeline held a file this tool cannot
	// open. The handoff is discarded.
	ErrUnsupportedHandoff = errors.New("unsupported pipeline handoff")
	// ErrUnreadable means an added file is neither a document nor locked.
	ErrUnreadable = errors.New("file could not be read as a document")
	// ErrClosed means the session was closed.
	ErrClosed = errors.New("session is closed")
)

// Inspector classifies files and unlocks encrypted ones.
type Inspector interface {
	Inspect(ctx context.Context, data []byte) models.InspectResult
	Unlock(ctx context.Context, data []byte, passphrase string) models.UnlockResult
}

// Deps are the collaborators shared by every session of a process.
type Deps struct {
	Inspector Inspector
	Registry  *handles.Registry
	Store     *pipeline.Store
	// History is optional.
	History *history.Log
	Logger  *slog.Logger
}

// Session is one run of a tool. Callers hold it with defer Close so every
// handle it issued is released on every exit path.
type Session struct {
	ID   string
	Tool string

	deps    Deps
	tracker *handles.Tracker
	logger  *slog.Logger

	mu         sync.Mutex
	generation uint64
	docs       []*models.Document
	closed     bool
}

// New starts a session for tool.
func New(tool string, deps Deps) *Session {
	id := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:      id,
		Tool:    tool,
		deps:    deps,
		tracker: handles.NewTracker(deps.Registry),
		logger:  logger.With("sessionId", id, "tool", tool),
	}
}

// Add inspects a new file and records it. Locked files are kept in the
// locked state; unreadable files are kept in the error state and reported
// with ErrUnreadable.
func (s *Session) Add(ctx context.Context, name string, data []byte) (*models.Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	gen := s.generation
	s.mu.Unlock()

	doc := models.NewDocument(name, data)
	status, err := s.classify(ctx, doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrStaleSession
	}
	s.docs = append(s.docs, doc)
	if status == models.StatusError {
		return doc, fmt.Errorf("%s: %w", name, ErrUnreadable)
	}
	return doc, nil
}

// Resubmit returns a completed or failed document to pending and inspects
// it again.
func (s *Session) Resubmit(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	err := doc.Resubmit()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	status, err := s.classify(ctx, doc)
	if err != nil {
		return err
	}
	if status == models.StatusError {
		return fmt.Errorf("%s: %w", doc.Name, ErrUnreadable)
	}
	return nil
}

// classify moves a pending document to locked, unlocked or error and
// returns the new status.
func (s *Session) classify(ctx context.Context, doc *models.Document) (models.Status, error) {
	logCtx := s.logger.With("documentId", doc.ID, "name", doc.Name)
	res := s.deps.Inspector.Inspect(ctx, doc.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	switch {
	case res.Locked:
		logCtx.Info("Document needs a passphrase.")
		err = doc.MarkLocked()
	case res.Unreadable():
		logCtx.Warn("Document could not be read.")
		err = doc.MarkFailed(ErrUnreadable)
	default:
		logCtx.Info("Document inspected.", "pageCount", res.PageCount)
		err = doc.MarkUnlocked(res.PageCount, "", res.Preview)
	}
	return doc.Status, err
}

// Unlock retries a locked document with passphrase. A wrong passphrase
// reports false and leaves the document locked.
func (s *Session) Unlock(ctx context.Context, doc *models.Document, passphrase string) (bool, error) {
	s.mu.Lock()
	status := doc.Status
	s.mu.Unlock()
	if status != models.StatusLocked {
		return false, fmt.Errorf("%w: document %s is %s, not locked", models.ErrInvalidTransition, doc.Name, status)
	}
	logCtx := s.logger.With("documentId", doc.ID, "name", doc.Name)
	res := s.deps.Inspector.Unlock(ctx, doc.Data, passphrase)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !res.Success {
		logCtx.Info("Passphrase rejected.")
		return false, doc.MarkLocked()
	}
	if err := doc.MarkUnlocked(res.PageCount, passphrase, res.Preview); err != nil {
		return false, err
	}
	logCtx.Info("Document unlocked.", "pageCount", res.PageCount)
	return true, nil
}

// Documents returns the session's documents in the order they were added.
func (s *Session) Documents() []*models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Document(nil), s.docs...)
}

// Remove drops doc from the session.
func (s *Session) Remove(doc *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d == doc {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			return
		}
	}
}

// Tracker returns the session's handle tracker.
func (s *Session) Tracker() *handles.Tracker {
	return s.tracker
}

// Output returns the handle of the session's current output.
func (s *Session) Output() (handles.Handle, bool) {
	return s.tracker.Current(handles.DefaultSlot)
}

// Begin moves docs into processing and returns a ticket bound to the
// current generation. Every doc must be unlocked.
func (s *Session) Begin(docs ...*models.Document) (*Ticket, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to process")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	for _, d := range docs {
		if d.Status != models.StatusUnlocked {
			return nil, fmt.Errorf("%w: document %s is %s", models.ErrInvalidTransition, d.Name, d.Status)
		}
	}
	for _, d := range docs {
		if err := d.MarkProcessing(); err != nil {
			return nil, err
		}
	}
	return &Ticket{s: s, generation: s.generation, docs: docs}, nil
}

// Reset discards every document and releases every handle. Tickets issued
// before the reset become stale, and a handoff this session deposited that
// no tool consumed is withdrawn.
func (s *Session) Reset() {
	s.reset()
	if s.deps.Store.Withdraw(s.ID) {
		s.logger.Info("Withdrew unconsumed pipeline handoff.")
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.docs = nil
	if n := s.tracker.ReleaseAll(); n > 0 {
		s.logger.Info("Released session handles.", "count", n)
	}
}

// Close releases the session like Reset and refuses further work. A pending
// handoff survives so the next tool can consume it. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.reset()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// LoadFromPipeline consumes the pipeline handoff, if any, and adds it as a
// document. A handoff whose media type is not in accept is discarded and
// reported with ErrUnsupportedHandoff.
func (s *Session) LoadFromPipeline(ctx context.Context, accept ...string) (*models.Document, bool, error) {
	f, ok := s.deps.Store.Consume()
	if !ok {
		return nil, false, nil
	}
	if !accepts(accept, f.MIMEType) {
		s.logger.Warn("Discarded pipeline handoff.", "name", f.Name, "mimeType", f.MIMEType)
		return nil, false, fmt.Errorf("%w: %s is %s", ErrUnsupportedHandoff, f.Name, f.MIMEType)
	}
	doc, err := s.Add(ctx, f.Name, f.Data)
	if err != nil {
		return doc, doc != nil, err
	}
	return doc, true, nil
}

func accepts(accept []string, mimeType string) bool {
	for _, a := range accept {
		if a == mimeType {
			return true
		}
	}
	return false
}

// Output is a finished transform result.
type Output struct {
	Name     string
	MIMEType string
	Data     []byte
	// Pipeline makes the output the next tool's input.
	Pipeline     bool
	OriginalData []byte
}

// Ticket tracks one in-flight transform.
type Ticket struct {
	s          *Session
	generation uint64
	docs       []*models.Document
}

// Documents returns the documents being processed.
func (t *Ticket) Documents() []*models.Document {
	return t.docs
}

func (t *Ticket) current() bool {
	return !t.s.closed && t.s.generation == t.generation
}

// Complete records a successful result, replaces the session's output
// handle and optionally hands the result to the pipeline. A result that
// arrives after a reset is dropped with ErrStaleSession.
func (t *Ticket) Complete(out Output) (handles.Handle, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if !t.current() {
		t.s.logger.Info("Dropped stale result.", "name", out.Name)
		return "", ErrStaleSession
	}
	for _, d := range t.docs {
		if err := d.MarkCompleted(); err != nil {
			return "", err
		}
	}
	h := t.s.tracker.Create(handles.Blob{Name: out.Name, MIMEType: out.MIMEType, Data: out.Data})
	if out.Pipeline {
		t.s.deps.Store.Set(pipeline.File{
			Data:         out.Data,
			Name:         out.Name,
			MIMEType:     out.MIMEType,
			OriginalData: out.OriginalData,
			Source:       t.s.ID,
		})
	}
	t.s.record(out.Name, len(out.Data), h)
	t.s.logger.Info("Transform complete.", "name", out.Name, "size", len(out.Data), "handle", h)
	return h, nil
}

// CompleteBatch packages files into one archive named name and completes
// with it.
func (t *Ticket) CompleteBatch(name string, files []models.NamedFile) (handles.Handle, error) {
	data, err := archive.Build(files)
	if err != nil {
		return "", t.Fail(err)
	}
	return t.Complete(Output{Name: name, MIMEType: archive.MIMEType, Data: data})
}

// Fail records a failed transform. It returns cause, or ErrStaleSession
// when the session moved on.
func (t *Ticket) Fail(cause error) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if !t.current() {
		return ErrStaleSession
	}
	for _, d := range t.docs {
		if err := d.MarkFailed(cause); err != nil {
			t.s.logger.Error("Failed to mark document as failed.", "documentId", d.ID, "error", err)
		}
	}
	t.s.logger.Info("Documents marked as failed.", "count", len(t.docs))
	return cause
}

// record must be called with mu held.
func (s *Session) record(name string, size int, h handles.Handle) {
	if s.deps.History == nil {
		return
	}
	err := s.deps.History.Append(history.Entry{Name: name, Tool: s.Tool, Size: size, Handle: string(h)})
	if err != nil {
		s.logger.Warn("Failed to record history.", "error", err)
	}
}
