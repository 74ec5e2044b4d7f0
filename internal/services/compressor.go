package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/progress"
	"github.com/Lllllllleong/docpipeline/internal/session"
)

// Compress re-encodes every page of docs as a JPEG at the tier's scale and
// quality, then reassembles each document on its own worker. A single
// document is handed to the pipeline; several are packaged as an archive.
//
// For a single document the first half of the progress covers
// rasterization and the second half assembly. For a batch, progress only
// moves as documents finish.
func (k *Toolkit) Compress(ctx context.Context, s *session.Session, docs []*models.Document, tier models.QualityTier, onProgress func(int)) (handles.Handle, error) {
	settings, ok := tier.Settings()
	if !ok {
		return "", fmt.Errorf("unknown quality tier %q", tier)
	}
	logCtx := k.logger.With("sessionId", s.ID, "tool", "compress", "tier", tier, "documentCount", len(docs))
	logCtx.Info("Starting compression.")

	ticket, err := s.Begin(docs...)
	if err != nil {
		return "", err
	}

	agg := progress.New(len(docs), onProgress)
	agg.Start()
	results := make([]models.NamedFile, len(docs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(k.concurrency)
	for i, doc := range docs {
		eg.Go(func() error {
			out, err := k.compressOne(gctx, doc, tier, settings, agg.Item(doc.ID))
			if err != nil {
				return fmt.Errorf("%s: %w", doc.Name, err)
			}
			results[i] = models.NamedFile{Name: baseName(doc.Name) + "_compressed.pdf", Data: out}
			agg.Complete(doc.ID)
			logCtx.Info("Document compressed.", "name", doc.Name, "before", len(doc.Data), "after", len(out))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", k.fail(ticket, logCtx, "failed to compress documents", err)
	}

	if len(docs) > 1 {
		return ticket.CompleteBatch("compressed.zip", results)
	}
	return ticket.Complete(session.Output{
		Name:         results[0].Name,
		MIMEType:     pdf.MIMEType,
		Data:         results[0].Data,
		Pipeline:     true,
		OriginalData: docs[0].Data,
	})
}

// compressOne rasterizes doc on the calling goroutine, reporting 0-50, then
// assembles the pages on a worker, reporting 50-100.
func (k *Toolkit) compressOne(ctx context.Context, doc *models.Document, tier models.QualityTier, settings models.TierSettings, report func(int)) ([]byte, error) {
	plain, err := k.inspector.Plain(doc.Data, doc.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	rendered, err := k.renderer.Open(ctx, plain, "")
	if err != nil {
		return nil, fmt.Errorf("failed to open for rendering: %w", err)
	}
	defer rendered.Close()

	rasterize := progress.Span(report, 0, 50)
	pageCount := rendered.PageCount()
	pages := make([][]byte, 0, pageCount)
	for p := 1; p <= pageCount; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := rendered.RenderPage(ctx, p, settings.Scale)
		if err != nil {
			return nil, err
		}
		jpg, err := pdf.EncodeJPEG(img, settings.Quality)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		pages = append(pages, jpg)
		rasterize(progress.Percent(p, pageCount))
	}

	return k.dispatcher.RunDocument(ctx, models.CompressRequest{
		Name:  doc.Name,
		Pages: pages,
		Tier:  tier,
	}, progress.Span(report, 50, 100))
}
