package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
)

// InspectorConfig holds settings for the document inspector.
type InspectorConfig struct {
	PreviewWidth int
	// PrimedTTL bounds how long decrypted documents stay cached after an
	// unlock.
	PrimedTTL time.Duration
}

// Inspector classifies incoming files and unlocks encrypted ones. Library
// errors never leave it: every outcome is an InspectResult or UnlockResult.
type Inspector struct {
	lib      *pdf.Library
	renderer pdf.Renderer
	primed   *cache.Cache
	config   InspectorConfig
	logger   *slog.Logger
}

type primedDocument struct {
	passphrase string
	plain      []byte
}

// NewInspector creates an Inspector. renderer may be nil, in which case no
// previews are produced.
func NewInspector(lib *pdf.Library, renderer pdf.Renderer, config InspectorConfig, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PrimedTTL <= 0 {
		config.PrimedTTL = 30 * time.Minute
	}
	return &Inspector{
		lib:      lib,
		renderer: renderer,
		primed:   cache.New(config.PrimedTTL, config.PrimedTTL/2),
		config:   config,
		logger:   logger,
	}
}

// Inspect opens data without a passphrase. A document that needs one is
// reported as locked; a document that fails strict validation is retried
// leniently before being reported unreadable.
func (i *Inspector) Inspect(ctx context.Context, data []byte) models.InspectResult {
	logCtx := i.logger.With("fileHash", calculateHash(data))

	pageCount, err := i.lib.PageCount(data, pdf.Options{})
	if err != nil {
		if errors.Is(err, pdf.ErrPasswordRequired) {
			logCtx.Info("Document is encrypted.")
			return models.InspectResult{Locked: true}
		}
		logCtx.Debug("Strict open failed, retrying leniently.", "error", err)
		pageCount, err = i.lib.PageCount(data, pdf.Options{Relaxed: true})
		if err != nil {
			if errors.Is(err, pdf.ErrPasswordRequired) {
				logCtx.Info("Document is encrypted.")
				return models.InspectResult{Locked: true}
			}
			logCtx.Warn("Document is unreadable.", "error", err)
			return models.InspectResult{}
		}
	}
	return models.InspectResult{
		PageCount: pageCount,
		Preview:   i.preview(ctx, data, logCtx),
	}
}

// Unlock retries data with passphrase. On success the decrypted document is
// primed so later rendering of the same file skips decryption.
func (i *Inspector) Unlock(ctx context.Context, data []byte, passphrase string) models.UnlockResult {
	key := calculateHash(data)
	logCtx := i.logger.With("fileHash", key)
	if passphrase == "" {
		return models.UnlockResult{}
	}

	plain, err := i.lib.Decrypt(data, passphrase)
	if err != nil {
		logCtx.Info("Unlock attempt rejected.", "error", err)
		return models.UnlockResult{}
	}
	pageCount, err := i.lib.PageCount(plain, pdf.Options{Relaxed: true})
	if err != nil {
		logCtx.Warn("Decrypted document is unreadable.", "error", err)
		return models.UnlockResult{}
	}
	i.primed.Set(key, primedDocument{passphrase: passphrase, plain: plain}, cache.DefaultExpiration)

	return models.UnlockResult{
		Success:   true,
		PageCount: pageCount,
		Preview:   i.preview(ctx, plain, logCtx),
	}
}

// Plain returns data without encryption, reusing a primed copy when the
// same file was unlocked with the same passphrase.
func (i *Inspector) Plain(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return data, nil
	}
	key := calculateHash(data)
	if x, found := i.primed.Get(key); found {
		if p := x.(primedDocument); p.passphrase == passphrase {
			return p.plain, nil
		}
	}
	plain, err := i.lib.Decrypt(data, passphrase)
	if err != nil {
		return nil, err
	}
	i.primed.Set(key, primedDocument{passphrase: passphrase, plain: plain}, cache.DefaultExpiration)
	return plain, nil
}

// Primed reports whether a decrypted copy of data is cached.
func (i *Inspector) Primed(data []byte) bool {
	_, found := i.primed.Get(calculateHash(data))
	return found
}

// preview renders the first page as a PNG thumbnail. Failures only cost the
// preview.
func (i *Inspector) preview(ctx context.Context, data []byte, logCtx *slog.Logger) []byte {
	if i.renderer == nil {
		return nil
	}
	png, err := i.renderPreview(ctx, data)
	if err != nil {
		logCtx.Warn("Failed to render preview.", "error", err)
		return nil
	}
	return png
}

func (i *Inspector) renderPreview(ctx context.Context, data []byte) ([]byte, error) {
	doc, err := i.renderer.Open(ctx, data, "")
	if err != nil {
		return nil, fmt.Errorf("failed to open document for preview: %w", err)
	}
	defer doc.Close()
	img, err := doc.RenderPage(ctx, 1, 1.0)
	if err != nil {
		return nil, err
	}
	return pdf.EncodePNG(pdf.Thumbnail(img, i.config.PreviewWidth))
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
