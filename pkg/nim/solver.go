package nim

import (
	"math/rand"
	"time"
)

// memoKey pairs a position with the perspective it was scored from. The same
// piles can be reached on a maximizing and a minimizing ply, and terminal
// positions score oppositely for the two.
type memoKey struct {
	position   string
	maximizing bool
}

// Stats reports solver cache activity since the last ClearCache.
type Stats struct {
	CacheSize   int `json:"cache_size"`
	Evaluations int `json:"evaluations"`
	CacheHits   int `json:"cache_hits"`
}

// Option configures a Solver.
type Option func(s *Solver)

// WithRand sets the random source used by RandomMove.
func WithRand(rng *rand.Rand) Option {
	return func(s *Solver) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// Solver evaluates Nim positions with memoized minimax. A Solver belongs to a
// single game session and is not safe for concurrent use; its cache should be
// cleared when a new game begins.
type Solver struct {
	memo        map[memoKey]Outcome
	rng         *rand.Rand
	evaluations int
	hits        int
}

// NewSolver returns a Solver with an empty cache.
func NewSolver(options ...Option) *Solver {
	s := &Solver{
		memo: make(map[memoKey]Outcome),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// ClearCache drops every memoized value and resets the counters.
func (s *Solver) ClearCache() {
	clear(s.memo)
	s.evaluations = 0
	s.hits = 0
}

// Stats returns cache size and counters.
func (s *Solver) Stats() Stats {
	return Stats{CacheSize: len(s.memo), Evaluations: s.evaluations, CacheHits: s.hits}
}

// Evaluate returns Win or Loss for position p scored from the maximizing
// player's side when isMaximizing is true, or the minimizing player's side
// otherwise. Evaluate(p, true) is Win iff the player to move from p can force
// taking the last item.
func (s *Solver) Evaluate(p Position, isMaximizing bool) Outcome {
	key := memoKey{position: p.Key(), maximizing: isMaximizing}
	if v, ok := s.memo[key]; ok {
		s.hits++
		return v
	}
	s.evaluations++

	var value Outcome
	switch {
	case IsTerminal(p):
		// The player to move here already lost: the opponent took the last item.
		if isMaximizing {
			value = Loss
		} else {
			value = Win
		}
	case isMaximizing:
		value = Loss
		for _, m := range LegalMoves(p) {
			if s.Evaluate(mustApply(p, m), false) == Win {
				value = Win
				break
			}
		}
	default:
		value = Win
		for _, m := range LegalMoves(p) {
			if s.Evaluate(mustApply(p, m), true) == Loss {
				value = Loss
				break
			}
		}
	}

	s.memo[key] = value
	return value
}

// Value is the outcome for the player to move from p.
func (s *Solver) Value(p Position) Outcome {
	return s.Evaluate(p, true)
}

// BestMove returns the first move, in LegalMoves order, whose resulting
// position has the highest value for the mover. The scan stops at the first
// winning move. It reports false when p is terminal.
func (s *Solver) BestMove(p Position) (Move, bool) {
	var best Move
	found := false
	bestValue := Loss
	for _, m := range LegalMoves(p) {
		// After our move the opponent is to play: the minimizing ply.
		v := s.Evaluate(mustApply(p, m), false)
		if !found || v > bestValue {
			best, bestValue, found = m, v, true
		}
		if bestValue == Win {
			break
		}
	}
	return best, found
}

// WinningMoves lists every move that leaves the opponent in a lost position,
// in LegalMoves order. It is empty when p is itself lost or terminal.
func (s *Solver) WinningMoves(p Position) []Move {
	var moves []Move
	for _, m := range LegalMoves(p) {
		if s.Evaluate(mustApply(p, m), false) == Win {
			moves = append(moves, m)
		}
	}
	return moves
}

// RandomMove picks uniformly among the legal moves without evaluating them.
// It reports false when p is terminal.
func (s *Solver) RandomMove(p Position) (Move, bool) {
	moves := LegalMoves(p)
	if len(moves) == 0 {
		return Move{}, false
	}
	return moves[s.rng.Intn(len(moves))], true
}
