package game

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// ExcellentLoss is the best-loss cutoff for an "excellent match"
const ExcellentLoss = 0.3

type lossBand struct {
	below float64
	color colorful.Color
	name  string
}

var (
	lossBands = []lossBand{
		{0.2, mustHex("#27ae60"), "very good"},
		{0.3, mustHex("#2ecc71"), "good"},
		{0.4, mustHex("#f39c12"), "moderate"},
		{0.5, mustHex("#e67e22"), "poor"},
	}
	badColor     = mustHex("#e74c3c")
	notBestColor = mustHex("#ffa500")
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Feedback is the indicator shown after an attempt
type Feedback struct {
	Color     colorful.Color `json:"-"`
	Hex       string         `json:"color"`
	Rating    string         `json:"rating"`
	Excellent bool           `json:"excellent"`
	Message   string         `json:"message"`
}

// LossColor returns the indicator colour and rating for a best loss
func LossColor(loss float64) (colorful.Color, string) {
	for _, band := range lossBands {
		if loss < band.below {
			return band.color, band.name
		}
	}
	return badColor, "bad"
}

// NewFeedback builds the indicator for one attempt. Only new bests are
// coloured by loss; other attempts are shown in orange.
func NewFeedback(loss float64, isBest bool) Feedback {
	if !isBest {
		return Feedback{
			Color:   notBestColor,
			Hex:     notBestColor.Hex(),
			Rating:  "not best",
			Message: fmt.Sprintf("generated image (loss %.4f, not best)", loss),
		}
	}

	c, rating := LossColor(loss)
	fb := Feedback{Color: c, Hex: c.Hex(), Rating: rating}
	if loss < ExcellentLoss {
		fb.Excellent = true
		fb.Message = fmt.Sprintf("excellent match! very close to the target (loss %.4f)", loss)
	} else {
		fb.Message = fmt.Sprintf("generated image (loss %.4f)", loss)
	}
	return fb
}
