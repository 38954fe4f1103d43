// Package embedding computes semantic similarity between images and text
// prompts with a pretrained CLIP model.
//
// Unlike the losses in package similarity, every score here is a similarity:
// higher means more alike. Callers that want a loss must use 1 - similarity.
package embedding

import (
	"errors"
	"image"
)

// ErrDisabled is returned when no embedding model is configured.
var ErrDisabled = errors.New("embedding model disabled")

// Encoder maps images and text into a shared embedding space.
type Encoder interface {
	EncodeImage(img image.Image) ([]float32, error)
	EncodeText(text string) ([]float32, error)
	Close() error
}
