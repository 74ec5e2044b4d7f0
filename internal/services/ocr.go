package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/progress"
	"github.com/Lllllllleong/docpipeline/internal/session"
)

const (
	// TextMIMEType is the media type of recognized text.
	TextMIMEType = "text/plain; charset=utf-8"
	// ocrScale renders pages at 144 DPI.
	ocrScale      = 2.0
	pageSeparator = "\n\n---\n\n"
)

// OCR recognizes the text of every page of doc, one page at a time on the
// calling goroutine, and joins the pages with a separator. Progress is
// reported after each page.
func (k *Toolkit) OCR(ctx context.Context, s *session.Session, doc *models.Document, onProgress func(int)) (handles.Handle, error) {
	if k.engine == nil {
		return "", fmt.Errorf("no OCR engine configured")
	}
	if onProgress == nil {
		onProgress = func(int) {}
	}
	logCtx := k.logger.With("sessionId", s.ID, "tool", "ocr", "documentId", doc.ID, "engine", k.engine.Name())
	logCtx.Info("Starting text recognition.")

	ticket, err := s.Begin(doc)
	if err != nil {
		return "", err
	}
	text, err := k.recognize(ctx, doc, onProgress)
	if err != nil {
		return "", k.fail(ticket, logCtx, "failed to recognize text", err)
	}
	logCtx.Info("Text recognition complete.", "characters", len(text))
	return ticket.Complete(session.Output{
		Name:     baseName(doc.Name) + ".txt",
		MIMEType: TextMIMEType,
		Data:     []byte(text),
	})
}

func (k *Toolkit) recognize(ctx context.Context, doc *models.Document, onProgress func(int)) (string, error) {
	plain, err := k.inspector.Plain(doc.Data, doc.Passphrase)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	rendered, err := k.renderer.Open(ctx, plain, "")
	if err != nil {
		return "", fmt.Errorf("failed to open for rendering: %w", err)
	}
	defer rendered.Close()

	onProgress(0)
	pageCount := rendered.PageCount()
	var out strings.Builder
	for p := 1; p <= pageCount; p++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := rendered.RenderPage(ctx, p, ocrScale)
		if err != nil {
			return "", err
		}
		text, err := k.engine.Recognize(ctx, img)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", p, err)
		}
		if p > 1 {
			out.WriteString(pageSeparator)
		}
		out.WriteString(text)
		onProgress(progress.Percent(p, pageCount))
	}
	return out.String(), nil
}
