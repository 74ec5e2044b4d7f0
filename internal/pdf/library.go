// Package pdf wraps pdfcpu as the document object library and defines the
// page renderer boundary. Raw library errors are wrapped here so callers can
// tell a missing passphrase apart from a broken file.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// MIMEType is the media type of every document this package produces.
const MIMEType = "application/pdf"

var (
	// ErrPasswordRequired means the document is encrypted and the supplied
	// passphrase (possibly none) does not open it.
	ErrPasswordRequired = errors.New("pdf: password required")
	// ErrUnreadable means the bytes could not be parsed as a document.
	ErrUnreadable = errors.New("pdf: unreadable document")
)

var disableConfigDir sync.Once

// Library performs structural operations on in-memory documents.
// It is safe for concurrent use; every call builds its own configuration.
type Library struct{}

// NewLibrary returns a Library. pdfcpu's on-disk configuration directory is
// disabled so nothing is written outside the caller's control.
func NewLibrary() *Library {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Library{}
}

// Options control how a document is opened.
type Options struct {
	Passphrase string
	// Relaxed tolerates recoverable structural errors.
	Relaxed bool
}

func (l *Library) config(opts Options) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationStrict
	if opts.Relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	}
	if opts.Passphrase != "" {
		conf.UserPW = opts.Passphrase
		conf.OwnerPW = opts.Passphrase
	}
	return conf
}

// PageCount opens data and returns its page count.
func (l *Library) PageCount(data []byte, opts Options) (n int, err error) {
	defer recoverUnreadable("failed to read page count", &err)
	n, err = api.PageCount(bytes.NewReader(data), l.config(opts))
	if err != nil {
		return 0, classify("failed to read page count", err)
	}
	return n, nil
}

// PageWidths returns the media box width of every page, rounded to points.
func (l *Library) PageWidths(data []byte, opts Options) (widths []int, err error) {
	defer recoverUnreadable("failed to read page dimensions", &err)
	dims, err := api.PageDims(bytes.NewReader(data), l.config(opts))
	if err != nil {
		return nil, classify("failed to read page dimensions", err)
	}
	widths = make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(d.Width + 0.5)
	}
	return widths, nil
}

// Decrypt removes encryption using passphrase as both user and owner password.
func (l *Library) Decrypt(data []byte, passphrase string) ([]byte, error) {
	return l.transform("failed to decrypt document", func(rs io.ReadSeeker, w io.Writer) error {
		return api.Decrypt(rs, w, l.config(Options{Passphrase: passphrase, Relaxed: true}))
	}, data)
}

// Encrypt protects data with AES-256 using passphrase as both user and
// owner password.
func (l *Library) Encrypt(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("failed to encrypt document: passphrase must not be empty")
	}
	return l.transform("failed to encrypt document", func(rs io.ReadSeeker, w io.Writer) error {
		conf := model.NewAESConfiguration(passphrase, passphrase, 256)
		conf.ValidationMode = model.ValidationRelaxed
		return api.Encrypt(rs, w, conf)
	}, data)
}

// Rotate turns every page clockwise by degrees, a multiple of 90.
func (l *Library) Rotate(data []byte, degrees int) ([]byte, error) {
	if degrees%90 != 0 {
		return nil, fmt.Errorf("failed to rotate document: rotation %d is not a multiple of 90", degrees)
	}
	if degrees%360 == 0 {
		return data, nil
	}
	return l.transform("failed to rotate document", func(rs io.ReadSeeker, w io.Writer) error {
		return api.Rotate(rs, w, degrees, nil, l.config(Options{Relaxed: true}))
	}, data)
}

// Collect builds a document from the 1-based pages of data, in the given
// order. Pages may repeat.
func (l *Library) Collect(data []byte, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("failed to collect pages: no pages selected")
	}
	selection := make([]string, len(pages))
	for i, p := range pages {
		selection[i] = strconv.Itoa(p)
	}
	return l.transform("failed to collect pages", func(rs io.ReadSeeker, w io.Writer) error {
		return api.Collect(rs, w, selection, l.config(Options{Relaxed: true}))
	}, data)
}

// Merge concatenates docs in order into a single document.
func (l *Library) Merge(docs [][]byte) (merged []byte, err error) {
	defer recoverUnreadable("failed to merge documents", &err)
	switch len(docs) {
	case 0:
		return nil, fmt.Errorf("failed to merge documents: nothing to merge")
	case 1:
		return docs[0], nil
	}
	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, l.config(Options{Relaxed: true})); err != nil {
		return nil, classify("failed to merge documents", err)
	}
	return out.Bytes(), nil
}

// ImagesToPDF creates a new document with one page per image, each image
// filling its page.
func (l *Library) ImagesToPDF(images [][]byte) (data []byte, err error) {
	defer recoverUnreadable("failed to import images", &err)
	if len(images) == 0 {
		return nil, fmt.Errorf("failed to import images: no images")
	}
	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img)
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, l.config(Options{Relaxed: true})); err != nil {
		return nil, fmt.Errorf("failed to import images: %w", err)
	}
	return out.Bytes(), nil
}

// Optimize rewrites data losslessly, dropping redundant objects.
func (l *Library) Optimize(data []byte, passphrase string) ([]byte, error) {
	return l.transform("failed to optimize document", func(rs io.ReadSeeker, w io.Writer) error {
		return api.Optimize(rs, w, l.config(Options{Passphrase: passphrase, Relaxed: true}))
	}, data)
}

func (l *Library) transform(message string, fn func(io.ReadSeeker, io.Writer) error, data []byte) (result []byte, err error) {
	defer recoverUnreadable(message, &err)
	var out bytes.Buffer
	if err := fn(bytes.NewReader(data), &out); err != nil {
		return nil, classify(message, err)
	}
	return out.Bytes(), nil
}

// recoverUnreadable turns a pdfcpu panic on malformed input into ErrUnreadable.
// It must be deferred directly by the function whose error it sets.
func recoverUnreadable(message string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: %w: %v", message, ErrUnreadable, r)
	}
}

// classify wraps err with ErrPasswordRequired or ErrUnreadable so callers can
// branch with errors.Is without inspecting pdfcpu internals.
func classify(message string, err error) error {
	if IsPasswordError(err) {
		return fmt.Errorf("%s: %w: %v", message, ErrPasswordRequired, err)
	}
	return fmt.Errorf("%s: %w: %v", message, ErrUnreadable, err)
}

// IsPasswordError reports whether err is a missing or wrong passphrase.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPasswordRequired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password")
}
