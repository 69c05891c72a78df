package nim

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrInvalidMove is returned when a move names a pile that does not exist or
	// removes an amount outside [1, pile count].
	ErrInvalidMove = errors.New("invalid move")
	// ErrInvalidPosition is returned when a position has a negative pile count
	// or cannot be parsed.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrPositionTooLarge is returned by CheckSolvable for positions with more
	// than MaxStates sub-positions.
	ErrPositionTooLarge = errors.New("position too large to solve")
)

// MaxStates caps the number of sub-positions of a position handed to a
// Solver. The memo table holds up to two entries per sub-position.
const MaxStates = 100_000

// DefaultPiles is the starting configuration used when none is given.
var DefaultPiles = []int{3, 4, 5}

// Position is an immutable snapshot of pile counts. The zero value has no piles
// and is terminal.
type Position struct {
	piles []int
}

// NewPosition returns a position with the given pile counts. The slice is copied.
func NewPosition(piles ...int) (Position, error) {
	for i, c := range piles {
		if c < 0 {
			return Position{}, fmt.Errorf("%w: pile %d has negative count %d", ErrInvalidPosition, i, c)
		}
	}
	return Position{piles: append([]int(nil), piles...)}, nil
}

// MustPosition is like NewPosition but panics on negative counts. Intended for
// literals in tests and defaults.
func MustPosition(piles ...int) Position {
	p, err := NewPosition(piles...)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPosition returns the standard 3-4-5 start.
func DefaultPosition() Position {
	return MustPosition(DefaultPiles...)
}

// ParsePosition parses a comma-separated list of pile counts such as "3,4,5".
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Position{}, fmt.Errorf("%w: empty pile list", ErrInvalidPosition)
	}
	fields := strings.Split(s, ",")
	piles := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Position{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPosition, f)
		}
		piles = append(piles, n)
	}
	return NewPosition(piles...)
}

// Len returns the number of piles.
func (p Position) Len() int { return len(p.piles) }

// Pile returns the count of pile i.
func (p Position) Pile(i int) int { return p.piles[i] }

// Piles returns a copy of the pile counts.
func (p Position) Piles() []int { return append([]int(nil), p.piles...) }

// Total returns the number of items left across all piles.
func (p Position) Total() int { return lo.Sum(p.piles) }

// Key is the canonical memo key, e.g. "3,4,5".
func (p Position) Key() string {
	return strings.Join(lo.Map(p.piles, func(c int, _ int) string { return strconv.Itoa(c) }), ",")
}

func (p Position) String() string { return "[" + p.Key() + "]" }

// Equal reports whether both positions have the same piles in the same order.
func (p Position) Equal(o Position) bool {
	if len(p.piles) != len(o.piles) {
		return false
	}
	for i := range p.piles {
		if p.piles[i] != o.piles[i] {
			return false
		}
	}
	return true
}

func (p Position) MarshalJSON() ([]byte, error) {
	if p.piles == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.piles)
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var piles []int
	if err := json.Unmarshal(data, &piles); err != nil {
		return err
	}
	np, err := NewPosition(piles...)
	if err != nil {
		return err
	}
	*p = np
	return nil
}

// StateCount returns the number of positions reachable from p, including p:
// the product of (count+1) over its piles. Results above MaxStates are
// reported as MaxStates+1.
func StateCount(p Position) int {
	n := 1
	for _, c := range p.piles {
		if c >= MaxStates {
			return MaxStates + 1
		}
		n *= c + 1
		if n > MaxStates {
			return MaxStates + 1
		}
	}
	return n
}

// CheckSolvable rejects positions whose search space exceeds MaxStates.
func CheckSolvable(p Position) error {
	if n := StateCount(p); n > MaxStates {
		return fmt.Errorf("%w: %s has more than %d sub-positions", ErrPositionTooLarge, p, MaxStates)
	}
	return nil
}

// NimSum is the XOR of all pile counts. The player to move wins under optimal
// play iff it is nonzero.
func NimSum(p Position) int {
	x := 0
	for _, c := range p.piles {
		x ^= c
	}
	return x
}

// IsTerminal reports whether no items remain. The player to move from a
// terminal position has lost.
func IsTerminal(p Position) bool {
	return lo.EveryBy(p.piles, func(c int) bool { return c == 0 })
}

// LegalMoves lists every move from p in ascending pile order, then ascending
// amount. It is empty iff p is terminal.
func LegalMoves(p Position) []Move {
	moves := make([]Move, 0, p.Total())
	for i, c := range p.piles {
		for amount := 1; amount <= c; amount++ {
			moves = append(moves, Move{PileIndex: i, Amount: amount})
		}
	}
	return moves
}

// Apply returns the position after m. It never clamps: an out-of-range pile or
// amount is an ErrInvalidMove.
func Apply(p Position, m Move) (Position, error) {
	if m.PileIndex < 0 || m.PileIndex >= len(p.piles) {
		return Position{}, fmt.Errorf("%w: pile %d out of range [0, %d)", ErrInvalidMove, m.PileIndex, len(p.piles))
	}
	if count := p.piles[m.PileIndex]; m.Amount < 1 || m.Amount > count {
		return Position{}, fmt.Errorf("%w: cannot take %d from pile %d holding %d", ErrInvalidMove, m.Amount, m.PileIndex, count)
	}
	next := p.Piles()
	next[m.PileIndex] -= m.Amount
	return Position{piles: next}, nil
}

// mustApply is used on moves produced by LegalMoves.
func mustApply(p Position, m Move) Position {
	next, err := Apply(p, m)
	if err != nil {
		panic(err)
	}
	return next
}
