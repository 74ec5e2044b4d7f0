package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/session"
)

// MergeOptions configure a merge.
type MergeOptions struct {
	// Rotations holds one clockwise rotation per document, or nothing.
	Rotations []int
	// OutputName defaults to merged.pdf.
	OutputName string
}

// Merge concatenates docs in the given order on a worker. The result is
// handed to the pipeline.
func (k *Toolkit) Merge(ctx context.Context, s *session.Session, docs []*models.Document, opts MergeOptions, onProgress func(int)) (handles.Handle, error) {
	if len(opts.Rotations) > 0 && len(opts.Rotations) != len(docs) {
		return "", fmt.Errorf("got %d rotations for %d documents", len(opts.Rotations), len(docs))
	}
	name := opts.OutputName
	if name == "" {
		name = "merged.pdf"
	}
	logCtx := k.logger.With("sessionId", s.ID, "tool", "merge", "documentCount", len(docs))
	logCtx.Info("Starting merge.")

	ticket, err := s.Begin(docs...)
	if err != nil {
		return "", err
	}
	inputs := make([]models.InputDocument, len(docs))
	for i, d := range docs {
		rotation := 0
		if len(opts.Rotations) > 0 {
			rotation = opts.Rotations[i]
		}
		inputs[i] = d.Input(rotation)
	}

	data, err := k.dispatcher.RunDocument(ctx, models.MergeRequest{Inputs: inputs}, onProgress)
	if err != nil {
		return "", k.fail(ticket, logCtx, "failed to merge documents", err)
	}
	return ticket.Complete(session.Output{
		Name:     name,
		MIMEType: pdf.MIMEType,
		Data:     data,
		Pipeline: true,
	})
}
