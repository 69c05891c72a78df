package bot

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/freeeve/nim-arena/pkg/nim"
)

// Difficulty levels accepted by StrategyForDifficulty.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ErrUnknownDifficulty is returned by ParseDifficulty for unrecognized levels.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// mixedBestProbability is the chance MixedStrategy plays the solver's move.
const mixedBestProbability = 0.5

// Strategy picks the computer's move for a position. The solver passed in
// belongs to the caller's game session; strategies must not retain it.
type Strategy interface {
	Name() string
	ChooseMove(s *nim.Solver, p nim.Position) (nim.Move, bool)
}

// ParseDifficulty normalizes a difficulty name. Empty input yields hard.
func ParseDifficulty(d string) (string, error) {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "":
		return DifficultyHard, nil
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", ErrUnknownDifficulty
	}
}

// StrategyForDifficulty returns the strategy for a difficulty level, drawing
// any coin flips from the package source. Unknown levels play optimally.
func StrategyForDifficulty(difficulty string) Strategy {
	return NewStrategy(difficulty, nil)
}

// NewStrategy is like StrategyForDifficulty but draws coin flips from rng.
// The strategy then belongs to one game, as rng is not safe for concurrent use.
func NewStrategy(difficulty string, rng *rand.Rand) Strategy {
	switch difficulty {
	case DifficultyEasy:
		return RandomStrategy{}
	case DifficultyMedium:
		return MixedStrategy{Rng: rng}
	default:
		return OptimalStrategy{}
	}
}

// --- RandomStrategy ---

// RandomStrategy plays a uniformly random legal move.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return DifficultyEasy }

func (RandomStrategy) ChooseMove(s *nim.Solver, p nim.Position) (nim.Move, bool) {
	return s.RandomMove(p)
}

// --- MixedStrategy ---

// MixedStrategy flips a coin each turn between the solver's best move and a
// random one. A nil Rng uses the package source.
type MixedStrategy struct {
	Rng *rand.Rand
}

func (MixedStrategy) Name() string { return DifficultyMedium }

func (m MixedStrategy) ChooseMove(s *nim.Solver, p nim.Position) (nim.Move, bool) {
	coin := botFloat64
	if m.Rng != nil {
		coin = m.Rng.Float64
	}
	if coin() < mixedBestProbability {
		return s.BestMove(p)
	}
	return s.RandomMove(p)
}

// --- OptimalStrategy ---

// OptimalStrategy always plays the solver's best move.
type OptimalStrategy struct{}

func (OptimalStrategy) Name() string { return DifficultyHard }

func (OptimalStrategy) ChooseMove(s *nim.Solver, p nim.Position) (nim.Move, bool) {
	return s.BestMove(p)
}
