package nim

import "fmt"

// Move removes Amount items from the pile at PileIndex.
type Move struct {
	PileIndex int `json:"pile"`
	Amount    int `json:"amount"`
}

func (m Move) String() string {
	return fmt.Sprintf("take %d from pile %d", m.Amount, m.PileIndex)
}

// Outcome is the game-theoretic value of a position for the player scored by
// the search: Win or Loss. Nim has no draws.
type Outcome int

const (
	Loss Outcome = -1
	Win  Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
