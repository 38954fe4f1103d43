package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptarena/logging"
	"promptarena/types"
)

// Phase of a defense game
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseDefense
	PhaseAttack
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseDefense:
		return "defense"
	case PhaseAttack:
		return "attack"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Default time limits. The controller does not enforce them.
const (
	DefenseTime = 15 * time.Minute
	RoundTime   = 60 * time.Second
)

// AttackResult is the outcome of one attack round
type AttackResult struct {
	Record      types.AttackRecord `json:"record"`
	Success     bool               `json:"success"`
	Output      string             `json:"output"`
	Tokens      int                `json:"tokens"`
	TotalTokens int                `json:"total_tokens"`
}

// DefenseGame is one keyword attack/defense game. The defender picks a
// keyword and a system prompt that should keep the model from saying it; the
// attacker wins a round when the keyword appears in the model output.
type DefenseGame struct {
	mu       sync.Mutex
	id       string
	chat     ChatCompleter
	recorder AttackRecorder

	phase       Phase
	keyword     string
	defense     string
	totalTokens int
	history     []AttackResult
}

// NewDefenseGame starts a game in the setup phase. recorder may be nil.
func NewDefenseGame(chat ChatCompleter, recorder AttackRecorder) *DefenseGame {
	return &DefenseGame{
		id:       uuid.New().String(),
		chat:     chat,
		recorder: recorder,
	}
}

// ID returns the session id used when recording attacks
func (g *DefenseGame) ID() string {
	return g.id
}

// Phase returns the current phase
func (g *DefenseGame) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// SetKeyword stores the secret keyword and moves to the defense phase
func (g *DefenseGame) SetKeyword(keyword string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseSetup {
		return fmt.Errorf("%w: keyword is set during %s, not %s", ErrWrongPhase, PhaseSetup, g.phase)
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("%w: keyword", ErrEmptyInput)
	}
	g.keyword = keyword
	g.phase = PhaseDefense
	return nil
}

// SetDefense stores the defending system prompt and moves to the attack phase
func (g *DefenseGame) SetDefense(defense string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseDefense {
		return fmt.Errorf("%w: defense is set during %s, not %s", ErrWrongPhase, PhaseDefense, g.phase)
	}
	defense = strings.TrimSpace(defense)
	if defense == "" {
		return fmt.Errorf("%w: defense prompt", ErrEmptyInput)
	}
	g.defense = defense
	g.phase = PhaseAttack
	return nil
}

// CheckAttack reports whether attack may be sent: it must be non-blank and
// share no character with the keyword.
func CheckAttack(keyword, attack string) error {
	if strings.TrimSpace(attack) == "" {
		return fmt.Errorf("%w: attack prompt", ErrEmptyInput)
	}
	for _, r := range keyword {
		if strings.ContainsRune(attack, r) {
			return fmt.Errorf("%w: '%c'", ErrIllegalAttack, r)
		}
	}
	return nil
}

// Attack runs one round. Rejected or failed rounds leave the game unchanged.
func (g *DefenseGame) Attack(ctx context.Context, attack string) (*AttackResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseAttack {
		return nil, fmt.Errorf("%w: attacks need the %s phase, game is in %s", ErrWrongPhase, PhaseAttack, g.phase)
	}
	attack = strings.TrimSpace(attack)
	if err := CheckAttack(g.keyword, attack); err != nil {
		return nil, err
	}

	output, tokens, err := g.chat.ChatCompletion(ctx, g.defense, attack)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	record := types.AttackRecord{
		SessionID: g.id,
		Keyword:   g.keyword,
		Attack:    attack,
		Output:    output,
		Tokens:    tokens,
		Success:   strings.Contains(output, g.keyword),
		CreatedAt: time.Now().UTC(),
	}
	if g.recorder != nil {
		if err := g.recorder.RecordAttack(&record); err != nil {
			return nil, fmt.Errorf("recording attack: %w", err)
		}
	}

	g.totalTokens += tokens
	result := AttackResult{
		Record:      record,
		Success:     record.Success,
		Output:      output,
		Tokens:      tokens,
		TotalTokens: g.totalTokens,
	}
	g.history = append(g.history, result)
	logging.LogInfo("Attack %d on session %s: success=%v tokens=%d", len(g.history), g.id, record.Success, tokens)

	return &result, nil
}

// TotalTokens returns the completion tokens spent so far
func (g *DefenseGame) TotalTokens() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalTokens
}

// History returns the attack rounds in order
func (g *DefenseGame) History() []AttackResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]AttackResult, len(g.history))
	copy(out, g.history)
	return out
}
