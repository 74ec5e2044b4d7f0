// Package ocr defines the text recognition boundary.
package ocr

import (
	"context"
	"image"
)

// Engine recognizes text in a rasterized page.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Options tune recognition.
type Options struct {
	Languages []string
	DPI       int
}
