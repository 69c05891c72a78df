package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/nim-arena/pkg/nim"
)

// ArenaConfig configures a single bot-vs-bot game.
type ArenaConfig struct {
	GameName string
	First    string // difficulty of the player moving first
	Second   string // difficulty of the player moving second
	Piles    nim.Position
	Seed     int64 // seeds every random choice in the game; 0 = random
}

// ArenaMove is one ply of an arena game.
type ArenaMove struct {
	Player int          `json:"player"`
	Move   nim.Move     `json:"move"`
	After  nim.Position `json:"after"`
}

// ArenaResult describes the outcome of a completed arena game.
type ArenaResult struct {
	GameName string       `json:"game_name"`
	Start    nim.Position `json:"start"`
	Winner   int          `json:"winner"` // 0 = first player, 1 = second
	Strategy string       `json:"winner_strategy"`
	Moves    []ArenaMove  `json:"moves"`
}

// RunGame plays a full game between two strategies. Each side owns a solver
// with its own cache, as two independent sessions would.
func RunGame(ctx context.Context, cfg ArenaConfig) (*ArenaResult, error) {
	start := cfg.Piles
	if start.Len() == 0 {
		start = nim.DefaultPosition()
	}
	// Every random choice in the game derives from one source, so a seed
	// replays the whole game regardless of what else runs concurrently.
	master := newSolverRand(cfg.Seed)
	derive := func() *rand.Rand { return rand.New(rand.NewSource(master.Int63())) }
	strategies := [2]Strategy{NewStrategy(cfg.First, derive()), NewStrategy(cfg.Second, derive())}
	solvers := [2]*nim.Solver{
		nim.NewSolver(nim.WithRand(derive())),
		nim.NewSolver(nim.WithRand(derive())),
	}

	result := &ArenaResult{GameName: cfg.GameName, Start: start}
	pos := start
	player := 0
	for !nim.IsTerminal(pos) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		move, ok := strategies[player].ChooseMove(solvers[player], pos)
		if !ok {
			return nil, fmt.Errorf("%s strategy returned no move from %s", strategies[player].Name(), pos)
		}
		next, err := nim.Apply(pos, move)
		if err != nil {
			return nil, fmt.Errorf("%s strategy: %w", strategies[player].Name(), err)
		}
		result.Moves = append(result.Moves, ArenaMove{Player: player, Move: move, After: next})
		pos = next
		player = 1 - player
	}

	// The player who emptied the board moved last and wins.
	result.Winner = 1 - player
	result.Strategy = strategies[result.Winner].Name()
	log.Debug().Str("game", cfg.GameName).Int("winner", result.Winner).Int("plies", len(result.Moves)).Msg("Arena game finished")
	return result, nil
}

// ParseMatchup parses "hard-vs-easy" into the two difficulties. A single tier
// such as "medium" plays itself.
func ParseMatchup(s string) (first, second string, err error) {
	parts := strings.SplitN(s, "-vs-", 2)
	if len(parts) == 1 {
		parts = append(parts, parts[0])
	}
	if first, err = ParseDifficulty(parts[0]); err != nil {
		return "", "", fmt.Errorf("first player %q: %w", parts[0], err)
	}
	if second, err = ParseDifficulty(parts[1]); err != nil {
		return "", "", fmt.Errorf("second player %q: %w", parts[1], err)
	}
	return first, second, nil
}
