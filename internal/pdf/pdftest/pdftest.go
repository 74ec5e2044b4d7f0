// Package pdftest builds small documents and a fake renderer for tests.
package pdftest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Lllllllleong/docpipeline/internal/pdf"
)

// Widths returns n distinct page widths: 100, 110, 120, ...
func Widths(start, n int) []int {
	widths := make([]int, n)
	for i := range widths {
		widths[i] = start + 10*i
	}
	return widths
}

// Document builds a document with one page per width. Each page is a solid
// image, so page identity can be checked through its width.
func Document(t testing.TB, widths ...int) []byte {
	t.Helper()
	images := make([][]byte, len(widths))
	for i, w := range widths {
		img := image.NewRGBA(image.Rect(0, 0, w, 200))
		fill(img, color.RGBA{R: uint8(i * 40), G: 120, B: 200, A: 255})
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("png.Encode failed: %v", err)
		}
		images[i] = buf.Bytes()
	}
	data, err := pdf.NewLibrary().ImagesToPDF(images)
	if err != nil {
		t.Fatalf("ImagesToPDF failed: %v", err)
	}
	return data
}

// Pages builds an n-page document with widths starting at 100.
func Pages(t testing.TB, n int) []byte {
	t.Helper()
	return Document(t, Widths(100, n)...)
}

// Encrypt protects data with passphrase.
func Encrypt(t testing.TB, data []byte, passphrase string) []byte {
	t.Helper()
	out, err := pdf.NewLibrary().Encrypt(data, passphrase)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	return out
}

// Lenient builds an n-page document that strict validation rejects and
// relaxed validation accepts: its info dict carries a lowercase Trapped name.
func Lenient(t testing.TB, n int) []byte {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(Pages(t, n)), conf)
	if err != nil {
		t.Fatalf("ReadValidateAndOptimize failed: %v", err)
	}
	if ctx.Info == nil {
		t.Fatalf("document has no info dict")
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || info == nil {
		t.Fatalf("DereferenceDict failed: %v", err)
	}
	info["Trapped"] = types.Name("true")
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		t.Fatalf("WriteContext failed: %v", err)
	}
	return buf.Bytes()
}

// PageWidths returns the page widths of data.
func PageWidths(t testing.TB, data []byte, passphrase string) []int {
	t.Helper()
	widths, err := pdf.NewLibrary().PageWidths(data, pdf.Options{Passphrase: passphrase, Relaxed: true})
	if err != nil {
		t.Fatalf("PageWidths failed: %v", err)
	}
	return widths
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// Renderer is a pdf.Renderer that checks passphrases with the real library
// and draws solid pages sized from the scale.
type Renderer struct {
	Library *pdf.Library
	// FailPage makes RenderPage fail for that page when non-zero.
	FailPage int

	mu       sync.Mutex
	rendered []float64
	opened   int
	closed   int
}

// NewRenderer returns a fake renderer backed by a real library.
func NewRenderer() *Renderer {
	return &Renderer{Library: pdf.NewLibrary()}
}

// Open implements pdf.Renderer.
func (r *Renderer) Open(_ context.Context, data []byte, passphrase string) (pdf.RenderedDocument, error) {
	n, err := r.Library.PageCount(data, pdf.Options{Passphrase: passphrase, Relaxed: true})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
	return &renderedDocument{r: r, pages: n}, nil
}

// Scales returns the scale of every page rendered so far.
func (r *Renderer) Scales() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.rendered...)
}

// Balanced reports whether every opened document was closed.
func (r *Renderer) Balanced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened == r.closed
}

type renderedDocument struct {
	r     *Renderer
	pages int
}

func (d *renderedDocument) PageCount() int { return d.pages }

func (d *renderedDocument) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("page %d is out of range (document has %d pages)", page, d.pages)
	}
	if d.r.FailPage == page {
		return nil, errors.New("simulated render failure")
	}
	d.r.mu.Lock()
	d.r.rendered = append(d.r.rendered, scale)
	d.r.mu.Unlock()
	w, h := int(60*scale), int(80*scale)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, color.RGBA{R: 250, G: 250, B: uint8(page), A: 255})
	return img, nil
}

func (d *renderedDocument) Close() error {
	d.r.mu.Lock()
	d.r.closed++
	d.r.mu.Unlock()
	return nil
}

// Image returns a solid w x h image.
func Image(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, color.RGBA{R: 30, G: 90, B: 160, A: 255})
	return img
}
