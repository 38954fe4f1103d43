package embedding

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Semantic scores images and prompts by embedding similarity.
//
// Scores are cosine similarities in [-1,1], higher meaning more alike. They
// are never part of the weighted loss in package similarity.
type Semantic struct {
	handle *Handle
}

// NewSemantic returns a Semantic backed by h
func NewSemantic(h *Handle) *Semantic {
	return &Semantic{handle: h}
}

// ImageSimilarity embeds both images and returns their cosine similarity.
func (s *Semantic) ImageSimilarity(a, b image.Image) (float64, error) {
	enc, err := s.handle.Encoder()
	if err != nil {
		return 0, err
	}
	if a == nil || b == nil {
		return 0, fmt.Errorf("nil image")
	}
	ea, err := enc.EncodeImage(a)
	if err != nil {
		return 0, fmt.Errorf("encoding first image: %w", err)
	}
	eb, err := enc.EncodeImage(b)
	if err != nil {
		return 0, fmt.Errorf("encoding second image: %w", err)
	}
	return CosineSimilarity(ea, eb), nil
}

// TextImageSimilarity embeds a prompt and an image and returns their cosine
// similarity.
func (s *Semantic) TextImageSimilarity(text string, img image.Image) (float64, error) {
	enc, err := s.handle.Encoder()
	if err != nil {
		return 0, err
	}
	if img == nil {
		return 0, fmt.Errorf("nil image")
	}
	et, err := enc.EncodeText(text)
	if err != nil {
		return 0, fmt.Errorf("encoding text: %w", err)
	}
	ei, err := enc.EncodeImage(img)
	if err != nil {
		return 0, fmt.Errorf("encoding image: %w", err)
	}
	return CosineSimilarity(et, ei), nil
}

// CosineSimilarity returns cos(a, b). Mismatched lengths, zero vectors and
// non-finite results all score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	fa, fb := widen(a), widen(b)
	na, nb := floats.Norm(fa, 2), floats.Norm(fb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(fa, fb) / (na * nb)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
