package types

import "time"

// ComponentScore is the presentation form of one metric: Score is a
// similarity (1 = identical), Loss the raw distance it was derived from.
type ComponentScore struct {
	Label       string  `json:"label"`
	Score       float64 `json:"score"`
	Loss        float64 `json:"loss"`
	Description string  `json:"description"`
}

// SimilarityReport holds the overall score and the per-metric breakdown,
// keyed by metric name.
type SimilarityReport struct {
	OverallSimilarity float64                   `json:"overall_similarity"`
	OverallLoss       float64                   `json:"overall_loss"`
	Components        map[string]ComponentScore `json:"components"`
}

// Attempt is one match-game submission
type Attempt struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Number    int       `json:"number"`
	Prompt    string    `json:"prompt"`
	Metric    string    `json:"metric"`
	Loss      float64   `json:"loss"`
	IsBest    bool      `json:"is_best"`
	ImageHash string    `json:"image_hash,omitempty"`
	ImagePNG  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// AttackRecord is one round of the attack/defense game
type AttackRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Keyword   string    `json:"keyword"`
	Attack    string    `json:"attack"`
	Output    string    `json:"output"`
	Tokens    int       `json:"tokens"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedImage holds the loss of one candidate image against a target.
// HashDistance is the perceptual hash Hamming distance to the target, or -1
// when either image could not be hashed.
type RankedImage struct {
	Path         string  `json:"path"`
	Format       string  `json:"format"`
	Hash         string  `json:"hash,omitempty"`
	HashDistance int     `json:"hash_distance"`
	Loss         float64 `json:"loss"`
}
