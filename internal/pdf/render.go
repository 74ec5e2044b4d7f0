package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Renderer opens documents for page rasterization.
type Renderer interface {
	// Open prepares data for rendering. It returns ErrPasswordRequired when
	// passphrase does not open an encrypted document.
	Open(ctx context.Context, data []byte, passphrase string) (RenderedDocument, error)
}

// RenderedDocument is an opened document that can rasterize pages.
type RenderedDocument interface {
	PageCount() int
	// RenderPage rasterizes the 1-based page at scale, where 1.0 is 72 DPI.
	RenderPage(ctx context.Context, page int, scale float64) (image.Image, error)
	Close() error
}

// Poppler renders pages with poppler's pdftoppm binary.
type Poppler struct {
	Binary  string
	Library *Library
}

// NewPoppler returns a renderer invoking binary (usually "pdftoppm").
func NewPoppler(binary string, lib *Library) *Poppler {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &Poppler{Binary: binary, Library: lib}
}

// Open writes data to a private temp directory and counts its pages.
func (p *Poppler) Open(ctx context.Context, data []byte, passphrase string) (RenderedDocument, error) {
	pageCount, err := p.Library.PageCount(data, Options{Passphrase: passphrase, Relaxed: true})
	if err != nil {
		return nil, err
	}
	tempDir, err := os.MkdirTemp("", "docpipe-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	source := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(source, data, 0o600); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write render source: %w", err)
	}
	return &popplerDocument{
		binary:     p.Binary,
		dir:        tempDir,
		source:     source,
		passphrase: passphrase,
		pageCount:  pageCount,
	}, nil
}

type popplerDocument struct {
	binary     string
	dir        string
	source     string
	passphrase string
	pageCount  int
}

func (d *popplerDocument) PageCount() int { return d.pageCount }

func (d *popplerDocument) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.pageCount {
		return nil, fmt.Errorf("page %d is out of range (document has %d pages)", page, d.pageCount)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}
	dpi := strconv.Itoa(int(72*scale + 0.5))
	outRoot := filepath.Join(d.dir, "page-"+strconv.Itoa(page))
	args := []string{"-png", "-singlefile", "-r", dpi, "-f", strconv.Itoa(page), "-l", strconv.Itoa(page)}
	if d.passphrase != "" {
		args = append(args, "-upw", d.passphrase)
	}
	args = append(args, d.source, outRoot)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(strings.ToLower(stderr.String()), "password") {
			return nil, fmt.Errorf("failed to render page %d: %w", page, ErrPasswordRequired)
		}
		return nil, fmt.Errorf("failed to render page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	outPath := outRoot + ".png"
	defer os.Remove(outPath)
	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open rendered page %d: %w", page, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page %d: %w", page, err)
	}
	return img, nil
}

func (d *popplerDocument) Close() error {
	if err := os.RemoveAll(d.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove render dir: %w", err)
	}
	return nil
}
