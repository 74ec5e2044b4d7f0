package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/session"
)

// Split extracts pages from doc on a worker. Single mode produces one
// document, handed to the pipeline; individual mode produces one document
// per page, packaged as an archive.
func (k *Toolkit) Split(ctx context.Context, s *session.Session, doc *models.Document, pages []int, mode models.SplitMode, onProgress func(int)) (handles.Handle, error) {
	base := baseName(doc.Name)
	logCtx := k.logger.With("sessionId", s.ID, "tool", "split", "documentId", doc.ID, "mode", mode, "pageCount", len(pages))
	logCtx.Info("Starting split.")

	ticket, err := s.Begin(doc)
	if err != nil {
		return "", err
	}
	req := models.SplitRequest{
		Input:    doc.Input(0),
		Pages:    pages,
		Mode:     mode,
		BaseName: base,
	}

	if mode == models.SplitIndividual {
		files, err := k.dispatcher.RunBatch(ctx, req, onProgress)
		if err != nil {
			return "", k.fail(ticket, logCtx, "failed to split document", err)
		}
		return ticket.CompleteBatch(base+"_pages.zip", files)
	}

	data, err := k.dispatcher.RunDocument(ctx, req, onProgress)
	if err != nil {
		return "", k.fail(ticket, logCtx, "failed to split document", err)
	}
	return ticket.Complete(session.Output{
		Name:         base + "_split.pdf",
		MIMEType:     pdf.MIMEType,
		Data:         data,
		Pipeline:     true,
		OriginalData: doc.Data,
	})
}

// ParsePages parses a selection such as "2,4,6" or "1-3,8" into 1-based
// page numbers in selection order. Every page must be within pageCount.
func ParsePages(selection string, pageCount int) ([]int, error) {
	var pages []int
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		first, err := parsePage(from, pageCount)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parsePage(to, pageCount); err != nil {
				return nil, err
			}
		}
		if last < first {
			return nil, fmt.Errorf("invalid page range %q", part)
		}
		for p := first; p <= last; p++ {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages selected")
	}
	return pages, nil
}

func parsePage(s string, pageCount int) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	if p < 1 || p > pageCount {
		return 0, fmt.Errorf("page %d is out of range (document has %d pages)", p, pageCount)
	}
	return p, nil
}
