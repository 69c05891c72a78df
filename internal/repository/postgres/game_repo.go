package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/pkg/nim"
)

const gameColumns = `id, creator_id, difficulty, initial_piles, piles, human_turn, status, winner,
	created_at, updated_at, finished_at`

// GameRepo handles game session database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*model.Game, error) {
	var g model.Game
	var initial, piles pq.Int64Array
	var winner sql.NullString
	err := row.Scan(&g.ID, &g.CreatorID, &g.Difficulty, &initial, &piles, &g.HumanTurn, &g.Status, &winner,
		&g.CreatedAt, &g.UpdatedAt, &g.FinishedAt)
	if err != nil {
		return nil, err
	}
	if g.InitialPiles, err = toPosition(initial); err != nil {
		return nil, fmt.Errorf("game %s initial_piles: %w", g.ID, err)
	}
	if g.Piles, err = toPosition(piles); err != nil {
		return nil, fmt.Errorf("game %s piles: %w", g.ID, err)
	}
	g.Winner = winner.String
	return &g, nil
}

func toPosition(a pq.Int64Array) (nim.Position, error) {
	return nim.NewPosition(lo.Map(a, func(n int64, _ int) int { return int(n) })...)
}

func toArray(p nim.Position) pq.Int64Array {
	return lo.Map(p.Piles(), func(n int, _ int) int64 { return int64(n) })
}

func (r *GameRepo) list(ctx context.Context, what, query string, args ...any) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s games: %w", what, err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// Create inserts a new game at the start position with the human to move.
func (r *GameRepo) Create(ctx context.Context, creatorID, difficulty string, piles nim.Position) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx,
		`INSERT INTO games (creator_id, difficulty, initial_piles, piles)
		 VALUES ($1, $2, $3, $3)
		 RETURNING `+gameColumns,
		creatorID, difficulty, toArray(piles),
	))
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return g, nil
}

// FindByID returns a game by ID, or nil when it does not exist.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	return g, nil
}

// ListByUser returns a user's games, most recent first.
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	return r.list(ctx, "user",
		`SELECT `+gameColumns+` FROM games WHERE creator_id = $1 ORDER BY created_at DESC LIMIT 100`, userID)
}

// ListActive returns every game still in progress.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	return r.list(ctx, "active",
		`SELECT `+gameColumns+` FROM games WHERE status = 'active' ORDER BY created_at`)
}

// ListAwaitingAI returns active games on the computer's turn idle for longer
// than idle.
func (r *GameRepo) ListAwaitingAI(ctx context.Context, idle time.Duration) ([]model.Game, error) {
	return r.list(ctx, "awaiting-ai",
		`SELECT `+gameColumns+` FROM games
		 WHERE status = 'active' AND NOT human_turn AND updated_at < now() - make_interval(secs => $1)
		 ORDER BY updated_at`, idle.Seconds())
}

// UpdateState stores the current position and whose turn it is.
func (r *GameRepo) UpdateState(ctx context.Context, gameID string, piles nim.Position, humanTurn bool) error {
	return r.exec(ctx, "update game state",
		`UPDATE games SET piles = $1, human_turn = $2, updated_at = now() WHERE id = $3`,
		toArray(piles), humanTurn, gameID)
}

// SetFinished marks a game as finished with the final position and winner.
func (r *GameRepo) SetFinished(ctx context.Context, gameID string, piles nim.Position, winner string) error {
	return r.exec(ctx, "set game finished",
		`UPDATE games SET piles = $1, status = 'finished', winner = $2, updated_at = now(), finished_at = now()
		 WHERE id = $3`,
		toArray(piles), winner, gameID)
}

// Reset restores the start position, hands the move to the human and
// optionally changes the difficulty (empty keeps the current one).
func (r *GameRepo) Reset(ctx context.Context, gameID, difficulty string) error {
	return r.exec(ctx, "reset game",
		`UPDATE games SET piles = initial_piles, human_turn = TRUE, status = 'active', winner = NULL,
		        finished_at = NULL, difficulty = COALESCE(NULLIF($1, ''), difficulty), updated_at = now()
		 WHERE id = $2`,
		difficulty, gameID)
}

// Delete removes a game.
func (r *GameRepo) Delete(ctx context.Context, gameID string) error {
	return r.exec(ctx, "delete game", `DELETE FROM games WHERE id = $1`, gameID)
}

func (r *GameRepo) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
