package model

import (
	"time"

	"github.com/freeeve/nim-arena/pkg/nim"
)

// Game statuses.
const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Players of a game. Also used as the winner value.
const (
	PlayerHuman = "human"
	PlayerAI    = "ai"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Game is one human-vs-computer Nim session. The human always moves first
// from InitialPiles.
type Game struct {
	ID           string       `json:"id"`
	CreatorID    string       `json:"creator_id"`
	Difficulty   string       `json:"difficulty"`
	InitialPiles nim.Position `json:"initial_piles"`
	Piles        nim.Position `json:"piles"`
	HumanTurn    bool         `json:"human_turn"`
	Status       string       `json:"status"`
	Winner       string       `json:"winner,omitempty"`
	LastMove     *PlayedMove  `json:"last_move,omitempty"` // live state only, not persisted
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// PlayedMove records who made a move.
type PlayedMove struct {
	By   string   `json:"by"`
	Move nim.Move `json:"move"`
}

// ToMove returns the player whose turn it is, or "" once the game is over.
func (g *Game) ToMove() string {
	if g.Status != StatusActive {
		return ""
	}
	if g.HumanTurn {
		return PlayerHuman
	}
	return PlayerAI
}

// Analysis is the solver's view of a game's current position from the
// perspective of the player to move.
type Analysis struct {
	GameID       string       `json:"game_id"`
	Piles        nim.Position `json:"piles"`
	ToMove       string       `json:"to_move"`
	Outcome      nim.Outcome  `json:"outcome"`
	NimSum       int          `json:"nim_sum"`
	BestMove     *nim.Move    `json:"best_move,omitempty"`
	WinningMoves []nim.Move   `json:"winning_moves"`
	Solver       nim.Stats    `json:"solver"`
}
