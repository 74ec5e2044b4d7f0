package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/docpipeline/internal/config"
	"github.com/Lllllllleong/docpipeline/internal/handles"
	"github.com/Lllllllleong/docpipeline/internal/models"
	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/session"
)

// ChainReport describes one finished chain step.
type ChainReport struct {
	Step   int
	Tool   string
	Output string
	Size   int
}

// RunChain runs chain.Steps in order, each in its own session. The first
// step works on inputs; every later step consumes the previous output from
// the pipeline store in deps. It returns the final output and leaves the
// store empty.
//
// Split steps always produce a single document. Encrypted documents are
// unlocked with the passphrase of the most recent protect step, or with
// chain.Password before any.
func (k *Toolkit) RunChain(ctx context.Context, chain *config.Chain, inputs []models.NamedFile, deps session.Deps, onStep func(ChainReport)) (handles.Blob, error) {
	if len(inputs) == 0 {
		return handles.Blob{}, fmt.Errorf("chain has no inputs")
	}
	if onStep == nil {
		onStep = func(ChainReport) {}
	}
	passphrase := chain.Password
	var final handles.Blob
	for i, step := range chain.Steps {
		logCtx := k.logger.With("step", i+1, "tool", step.Tool)
		logCtx.Info("Starting chain step.")

		blob, err := k.runStep(ctx, step, i, inputs, passphrase, deps, logCtx)
		if err != nil {
			return handles.Blob{}, fmt.Errorf("step %d (%s): %w", i+1, step.Tool, err)
		}
		if i < len(chain.Steps)-1 && !deps.Store.Pending() {
			return handles.Blob{}, fmt.Errorf("step %d (%s) does not produce an input for the next step", i+1, step.Tool)
		}
		if step.Tool == "protect" {
			passphrase = step.Passphrase
		}
		final = blob
		onStep(ChainReport{Step: i + 1, Tool: step.Tool, Output: blob.Name, Size: len(blob.Data)})
	}
	deps.Store.Clear()
	return final, nil
}

func (k *Toolkit) runStep(ctx context.Context, step config.ChainStep, index int, inputs []models.NamedFile, passphrase string, deps session.Deps, logCtx *slog.Logger) (handles.Blob, error) {
	s := session.New(step.Tool, deps)
	defer s.Close()

	var docs []*models.Document
	if index == 0 {
		for _, in := range inputs {
			doc, err := s.Add(ctx, in.Name, in.Data)
			if err != nil {
				return handles.Blob{}, err
			}
			docs = append(docs, doc)
		}
	} else {
		doc, ok, err := s.LoadFromPipeline(ctx, pdf.MIMEType)
		if err != nil {
			return handles.Blob{}, err
		}
		if !ok {
			return handles.Blob{}, fmt.Errorf("no input from the previous step")
		}
		docs = append(docs, doc)
	}
	for _, doc := range docs {
		if doc.Status != models.StatusLocked {
			continue
		}
		ok, err := s.Unlock(ctx, doc, passphrase)
		if err != nil {
			return handles.Blob{}, err
		}
		if !ok {
			return handles.Blob{}, fmt.Errorf("%s: wrong or missing password", doc.Name)
		}
	}

	var (
		h   handles.Handle
		err error
	)
	switch step.Tool {
	case "merge":
		rotations := make([]int, len(docs))
		for i := range rotations {
			rotations[i] = step.Rotation
		}
		h, err = k.Merge(ctx, s, docs, MergeOptions{Rotations: rotations}, nil)
	case "split":
		if err = single(docs); err == nil {
			h, err = k.Split(ctx, s, docs[0], step.Pages, models.SplitSingle, nil)
		}
	case "compress":
		tierName := step.Tier
		if tierName == "" {
			tierName = string(models.TierStandard)
		}
		var tier models.QualityTier
		if tier, err = models.ParseTier(tierName); err == nil {
			h, err = k.Compress(ctx, s, docs, tier, nil)
		}
	case "optimize":
		if err = single(docs); err == nil {
			h, err = k.Optimize(ctx, s, docs[0])
		}
	case "protect":
		if err = single(docs); err == nil {
			h, err = k.Protect(ctx, s, docs[0], step.Passphrase)
		}
	default:
		err = fmt.Errorf("unknown tool %q", step.Tool)
	}
	if err != nil {
		return handles.Blob{}, err
	}
	blob, err := deps.Registry.MustResolve(h)
	if err != nil {
		return handles.Blob{}, err
	}
	logCtx.Info("Chain step complete.", "output", blob.Name, "size", len(blob.Data))
	return blob, nil
}

func single(docs []*models.Document) error {
	if len(docs) != 1 {
		return fmt.Errorf("tool works on exactly one document, got %d", len(docs))
	}
	return nil
}
