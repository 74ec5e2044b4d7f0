package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/session"
)

// Protect encrypts doc with AES-256, using passphrase for both opening and
// editing. It runs directly, without a worker.
func (k *Toolkit) Protect(ctx context.Context, s *session.Session, doc *models.Document, passphrase string) (handles.Handle, error) {
	if passphrase == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	logCtx := k.logger.With("sessionId", s.ID, "tool", "protect", "documentId", doc.ID)
	ticket, err := s.Begin(doc)
	if err != nil {
		return "", err
	}
	plain, err := k.inspector.Plain(doc.Data, doc.Passphrase)
	if err != nil {
		return "", k.fail(ticket, logCtx, "failed to decrypt document", err)
	}
	if err := ctx.Err(); err != nil {
		return "", k.fail(ticket, logCtx, "protect cancelled", err)
	}
	out, err := k.lib.Encrypt(plain, passphrase)
	if err != nil {
		return "", k.fail(ticket, logCtx, "failed to protect document", err)
	}
	logCtx.Info("Document protected.")
	return ticket.Complete(session.Output{
		Name:         baseName(doc.Name) + "_protected.pdf",
		MIMEType:     pdf.MIMEType,
		Data:         out,
		Pipeline:     true,
		OriginalData: doc.Data,
	})
}

// Optimize rewrites doc losslessly, dropping redundant objects.
func (k *Toolkit) Optimize(ctx context.Context, s *session.Session, doc *models.Document) (handles.Handle, error) {
	logCtx := k.logger.With("sessionId", s.ID, "tool", "optimize", "documentId", doc.ID)
	ticket, err := s.Begin(doc)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", k.fail(ticket, logCtx, "optimize cancelled", err)
	}
	out, err := k.lib.Optimize(doc.Data, doc.Passphrase)
	if err != nil {
		return "", k.fail(ticket, logCtx, "failed to optimize document", err)
	}
	logCtx.Info("Document optimized.", "before", len(doc.Data), "after", len(out))
	return ticket.Complete(session.Output{
		Name:         baseName(doc.Name) + "_optimized.pdf",
		MIMEType:     pdf.MIMEType,
		Data:         out,
		Pipeline:     true,
		OriginalData: doc.Data,
	})
}
