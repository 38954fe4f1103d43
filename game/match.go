package game

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptarena/imageprocessor"
	"promptarena/logging"
	"promptarena/similarity"
	"promptarena/types"
)

// BlankImageSize is the side of the black image scored for an empty prompt
const BlankImageSize = 512

// MatchResult is the outcome of one submission
type MatchResult struct {
	Attempt    types.Attempt `json:"attempt"`
	Loss       float64       `json:"loss"`
	IsBest     bool          `json:"is_best"`
	BestLoss   float64       `json:"best_loss"`
	BestPrompt string        `json:"best_prompt"`
	Image      image.Image   `json:"-"`
	Feedback   Feedback      `json:"feedback"`
}

// MatchOption configures a MatchSession
type MatchOption func(*MatchSession)

// WithMetric selects the metric attempts are scored with
func WithMetric(m similarity.Metric) MatchOption {
	return func(s *MatchSession) { s.metric = m }
}

// WithLossScorer replaces the default scorer
func WithLossScorer(sc LossScorer) MatchOption {
	return func(s *MatchSession) { s.scorer = sc }
}

// WithAttemptRecorder persists every attempt
func WithAttemptRecorder(r AttemptRecorder) MatchOption {
	return func(s *MatchSession) { s.recorder = r }
}

// WithSessionID sets the session id instead of a random one
func WithSessionID(id string) MatchOption {
	return func(s *MatchSession) { s.id = id }
}

// MatchSession is one run of the matching game. Submissions are serialized.
type MatchSession struct {
	mu        sync.Mutex
	id        string
	target    image.Image
	metric    similarity.Metric
	scorer    LossScorer
	generator ImageGenerator
	recorder  AttemptRecorder

	attempts   int
	hasBest    bool
	bestLoss   float64
	bestPrompt string
	bestImage  image.Image
}

// NewMatchSession starts a session against target
func NewMatchSession(target image.Image, generator ImageGenerator, opts ...MatchOption) (*MatchSession, error) {
	if target == nil {
		return nil, ErrNoTarget
	}
	s := &MatchSession{
		id:        uuid.New().String(),
		target:    target,
		metric:    similarity.MetricCombined,
		generator: generator,
		bestLoss:  math.Inf(1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.scorer == nil {
		scorer, err := similarity.NewScorer()
		if err != nil {
			return nil, err
		}
		s.scorer = scorer
	}
	return s, nil
}

// ID returns the session id used when recording attempts
func (s *MatchSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func blankImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, BlankImageSize, BlankImageSize))
	black := color.NRGBA{A: 255}
	for y := 0; y < BlankImageSize; y++ {
		for x := 0; x < BlankImageSize; x++ {
			img.SetNRGBA(x, y, black)
		}
	}
	return img
}

// Submit generates an image for prompt, scores it against the target and
// updates the best attempt when the loss is strictly lower. A blank prompt
// scores a black image without calling the generator. On any error the
// session is left as it was.
func (s *MatchSession) Submit(ctx context.Context, prompt string) (*MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompt = strings.TrimSpace(prompt)

	var img image.Image
	if prompt == "" {
		img = blankImage()
	} else {
		if s.generator == nil {
			return nil, fmt.Errorf("no image generator configured")
		}
		var err error
		if img, err = s.generator.GenerateImage(ctx, prompt); err != nil {
			return nil, fmt.Errorf("generating image: %w", err)
		}
	}

	loss, err := s.scorer.Loss(s.target, img, s.metric)
	if err != nil {
		return nil, fmt.Errorf("scoring attempt: %w", err)
	}

	isBest := !s.hasBest || loss < s.bestLoss
	attempt := types.Attempt{
		SessionID: s.id,
		Number:    s.attempts + 1,
		Prompt:    prompt,
		Metric:    s.metric.String(),
		Loss:      loss,
		IsBest:    isBest,
		CreatedAt: time.Now().UTC(),
	}

	if s.recorder != nil {
		if attempt.ImagePNG, err = imageprocessor.EncodePNG(img); err != nil {
			return nil, err
		}
		if hash, err := imageprocessor.AverageHash(img); err == nil {
			attempt.ImageHash = hash.String()
		} else {
			logging.DebugLog("Cannot hash attempt %d: %v", attempt.Number, err)
		}
		if err := s.recorder.RecordAttempt(&attempt); err != nil {
			return nil, fmt.Errorf("recording attempt: %w", err)
		}
	}

	s.attempts = attempt.Number
	if isBest {
		s.hasBest = true
		s.bestLoss = loss
		s.bestPrompt = prompt
		s.bestImage = img
	}
	logging.LogInfo("Attempt %d of session %s: loss %.4f (best %.4f)", attempt.Number, s.id, loss, s.bestLoss)

	return &MatchResult{
		Attempt:    attempt,
		Loss:       loss,
		IsBest:     isBest,
		BestLoss:   s.bestLoss,
		BestPrompt: s.bestPrompt,
		Image:      img,
		Feedback:   NewFeedback(loss, isBest),
	}, nil
}

// Attempts returns the number of successful submissions
func (s *MatchSession) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Best returns the best loss, prompt and image so far. ok is false before
// the first attempt.
func (s *MatchSession) Best() (loss float64, prompt string, img image.Image, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestLoss, s.bestPrompt, s.bestImage, s.hasBest
}

// Reset loads a new target and starts over under a fresh session id, so
// recorded attempt numbers stay unique.
func (s *MatchSession) Reset(target image.Image) error {
	if target == nil {
		return ErrNoTarget
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.New().String()
	s.target = target
	s.attempts = 0
	s.hasBest = false
	s.bestLoss = math.Inf(1)
	s.bestPrompt = ""
	s.bestImage = nil
	return nil
}
