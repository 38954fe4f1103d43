// Package game holds the headless session controllers for the two
// mini-games: prompt-to-image matching and prompt attack/defense. The
// controllers keep no timers and draw nothing; callers drive them and render
// the results.
package game

import (
	"context"
	"errors"
	"image"

	"promptarena/similarity"
	"promptarena/types"
)

var (
	// ErrNoTarget is returned when a match session has no target image
	ErrNoTarget = errors.New("no target image loaded")
	// ErrEmptyInput is returned for blank keywords, defenses and attacks
	ErrEmptyInput = errors.New("empty input")
	// ErrWrongPhase is returned when a defense-game step is taken out of order
	ErrWrongPhase = errors.New("wrong phase")
	// ErrIllegalAttack is returned when an attack contains a keyword rune
	ErrIllegalAttack = errors.New("attack contains a keyword character")
)

// ImageGenerator renders a prompt into an image. *llm.Client satisfies it.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (image.Image, error)
}

// ChatCompleter answers userText under systemPrompt and reports the number of
// completion tokens. *llm.Client satisfies it.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, systemPrompt, userText string) (string, int, error)
}

// LossScorer compares two images. *similarity.Scorer satisfies it.
type LossScorer interface {
	Loss(a, b image.Image, m similarity.Metric) (float64, error)
}

// AttemptRecorder persists match attempts. *database.Store satisfies it.
type AttemptRecorder interface {
	RecordAttempt(a *types.Attempt) error
}

// AttackRecorder persists attack rounds. *database.Store satisfies it.
type AttackRecorder interface {
	RecordAttack(r *types.AttackRecord) error
}
