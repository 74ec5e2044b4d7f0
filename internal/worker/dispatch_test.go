package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docpipeline/internal/logging"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/pdf/pdftest"
)

// countingSpawner wraps a Spawner and counts spawned and terminated workers.
type countingSpawner struct {
	inner      Spawner
	spawned    atomic.Int32
	terminated atomic.Int32
}

func (s *countingSpawner) Spawn(ctx context.Context) (Process, error) {
	p, err := s.inner.Spawn(ctx)
	if err != nil {
		return nil, err
	}
	s.spawned.Add(1)
	return &countingProcess{Process: p, s: s}, nil
}

type countingProcess struct {
	Process
	s *countingSpawner
}

func (p *countingProcess) Terminate() error {
	p.s.terminated.Add(1)
	return p.Process.Terminate()
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *countingSpawner) {
	t.Helper()
	exec := NewExecutor(pdf.NewLibrary(), logging.Nop())
	spawner := &countingSpawner{inner: &InProcess{Executor: exec}}
	return NewDispatcher(spawner, 0, logging.Nop()), spawner
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) record(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) get() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func TestDispatcher_MergeKeepsDocumentOrder(t *testing.T) {
	d, spawner := newTestDispatcher(t)
	a := pdftest.Document(t, 100, 110, 120)
	b := pdftest.Document(t, 300, 310)

	var progress progressLog
	out, err := d.RunDocument(context.Background(), models.MergeRequest{Inputs: []models.InputDocument{
		{Name: "a.pdf", Data: a},
		{Name: "b.pdf", Data: b},
	}}, progress.record)
	require.NoError(t, err)

	want := append(pdftest.PageWidths(t, a, ""), pdftest.PageWidths(t, b, "")...)
	got := pdftest.PageWidths(t, out, "")
	assert.Len(t, got, 5)
	assert.Equal(t, want, got)
	assert.Equal(t, []int{50, 100}, progress.get())
	assert.EqualValues(t, 1, spawner.spawned.Load())
	assert.EqualValues(t, 1, spawner.terminated.Load())
}

func TestDispatcher_MergeEncryptedInput(t *testing.T) {
	d, _ := newTestDispatcher(t)
	a := pdftest.Encrypt(t, pdftest.Pages(t, 2), "s3cret")
	b := pdftest.Pages(t, 1)

	out, err := d.RunDocument(context.Background(), models.MergeRequest{Inputs: []models.InputDocument{
		{Name: "a.pdf", Data: a, Passphrase: "s3cret"},
		{Name: "b.pdf", Data: b, Rotation: 90},
	}}, nil)
	require.NoError(t, err)

	n, err := pdf.NewLibrary().PageCount(out, pdf.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDispatcher_SplitSingle(t *testing.T) {
	d, _ := newTestDispatcher(t)
	data := pdftest.Pages(t, 10)
	all := pdftest.PageWidths(t, data, "")

	out, err := d.RunDocument(context.Background(), models.SplitRequest{
		Input:    models.InputDocument{Name: "ten.pdf", Data: data},
		Pages:    []int{2, 4, 6},
		Mode:     models.SplitSingle,
		BaseName: "ten",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{all[1], all[3], all[5]}, pdftest.PageWidths(t, out, ""))
}

func TestDispatcher_SplitIndividual(t *testing.T) {
	d, _ := newTestDispatcher(t)
	data := pdftest.Pages(t, 10)
	all := pdftest.PageWidths(t, data, "")

	var progress progressLog
	files, err := d.RunBatch(context.Background(), models.SplitRequest{
		Input:    models.InputDocument{Name: "ten.pdf", Data: data},
		Pages:    []int{2, 4, 6},
		Mode:     models.SplitIndividual,
		BaseName: "ten",
	}, progress.record)
	require.NoError(t, err)
	require.Len(t, files, 3)

	for i, page := range []int{2, 4, 6} {
		assert.Equal(t, "ten_page_"+string(rune('0'+page))+".pdf", files[i].Name)
		assert.Equal(t, []int{all[page-1]}, pdftest.PageWidths(t, files[i].Data, ""))
	}
	assert.Equal(t, []int{33, 67, 100}, progress.get())
}

func TestDispatcher_SplitOutOfRangeFails(t *testing.T) {
	d, spawner := newTestDispatcher(t)
	_, err := d.RunDocument(context.Background(), models.SplitRequest{
		Input:    models.InputDocument{Name: "two.pdf", Data: pdftest.Pages(t, 2)},
		Pages:    []int{3},
		Mode:     models.SplitSingle,
		BaseName: "two",
	}, nil)

	var te *TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.KindSplit, te.Kind)
	assert.Contains(t, te.Message, "out of range")
	assert.EqualValues(t, 1, spawner.terminated.Load())
}

func TestDispatcher_CompressAssembly(t *testing.T) {
	d, _ := newTestDispatcher(t)
	pages := make([][]byte, 4)
	for i := range pages {
		img, err := pdf.EncodeJPEG(pdftest.Image(80, 100), 0.5)
		require.NoError(t, err)
		pages[i] = img
	}

	var progress progressLog
	out, err := d.RunDocument(context.Background(), models.CompressRequest{
		Name:  "scan.pdf",
		Pages: pages,
		Tier:  models.TierStandard,
	}, progress.record)
	require.NoError(t, err)

	n, err := pdf.NewLibrary().PageCount(out, pdf.Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int{25, 50, 75, 100}, progress.get())
}

func TestDispatcher_InvalidRequestNeverSpawns(t *testing.T) {
	d, spawner := newTestDispatcher(t)
	_, err := d.Run(context.Background(), models.MergeRequest{}, nil)
	assert.Error(t, err)
	assert.EqualValues(t, 0, spawner.spawned.Load())
}

// scriptedSpawner replays fixed event frames, optionally blocking forever
// afterwards.
type scriptedSpawner struct {
	events     []models.Event
	block      bool
	terminated atomic.Int32
}

func (s *scriptedSpawner) Spawn(context.Context) (Process, error) {
	var buf bytes.Buffer
	for _, ev := range s.events {
		payload, err := encodeUnchecked(string(ev.Type()), ev)
		if err != nil {
			return nil, err
		}
		if err := WriteFrame(&buf, payload); err != nil {
			return nil, err
		}
	}
	stdout := io.Reader(&buf)
	release := make(chan struct{})
	if s.block {
		stdout = io.MultiReader(&buf, blockingReader{release})
	}
	return &scriptedProcess{stdout: stdout, release: release, s: s}, nil
}

type blockingReader struct{ release chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.release
	return 0, io.ErrClosedPipe
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }

type scriptedProcess struct {
	stdout  io.Reader
	release chan struct{}
	once    sync.Once
	s       *scriptedSpawner
}

func (p *scriptedProcess) Stdin() io.WriteCloser { return discardCloser{} }
func (p *scriptedProcess) Stdout() io.Reader     { return p.stdout }
func (p *scriptedProcess) Terminate() error {
	p.once.Do(func() {
		p.s.terminated.Add(1)
		close(p.release)
	})
	return nil
}

func TestDispatcher_DropsRegressingProgress(t *testing.T) {
	s := &scriptedSpawner{events: []models.Event{
		models.Progress{Percent: 10},
		models.Progress{Percent: 30},
		models.Progress{Percent: 20},
		models.Progress{Percent: 30},
		models.Success{Data: []byte("ok"), ByteCount: 2},
	}}
	d := NewDispatcher(s, 0, logging.Nop())

	var progress progressLog
	out, err := d.RunDocument(context.Background(), models.MergeRequest{Inputs: []models.InputDocument{{Name: "a", Data: []byte("x")}}}, progress.record)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)
	assert.Equal(t, []int{10, 30, 30}, progress.get())
	assert.EqualValues(t, 1, s.terminated.Load())
}

func TestDispatcher_MissingTerminal(t *testing.T) {
	s := &scriptedSpawner{events: []models.Event{models.Progress{Percent: 10}}}
	d := NewDispatcher(s, 0, logging.Nop())

	_, err := d.Run(context.Background(), models.MergeRequest{Inputs: []models.InputDocument{{Name: "a", Data: []byte("x")}}}, nil)
	assert.ErrorIs(t, err, ErrNoTerminal)
	assert.EqualValues(t, 1, s.terminated.Load())
}

func TestDispatcher_TimeoutTearsDownWorker(t *testing.T) {
	s := &scriptedSpawner{events: []models.Event{models.Progress{Percent: 5}}, block: true}
	d := NewDispatcher(s, 50*time.Millisecond, logging.Nop())

	_, err := d.Run(context.Background(), models.MergeRequest{Inputs: []models.InputDocument{{Name: "a", Data: []byte("x")}}}, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.EqualValues(t, 1, s.terminated.Load())
}

func TestDispatcher_UnexpectedResultShape(t *testing.T) {
	s := &scriptedSpawner{events: []models.Event{models.Success{Data: []byte("x"), ByteCount: 1}}}
	d := NewDispatcher(s, 0, logging.Nop())

	_, err := d.RunBatch(context.Background(), models.MergeRequest{Inputs: []models.InputDocument{{Name: "a", Data: []byte("x")}}}, nil)
	assert.ErrorIs(t, err, ErrUnexpectedResult)
}
