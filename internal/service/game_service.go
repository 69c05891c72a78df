package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/freeeve/nim-arena/internal/bot"
	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/internal/repository"
	"github.com/freeeve/nim-arena/pkg/nim"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameNotActive     = errors.New("game is not active")
	ErrNotYourTurn       = errors.New("it is not your turn")
	ErrNotInGame         = errors.New("you are not in this game")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidPiles      = errors.New("invalid piles")
)

// MaxPiles caps the number of piles in a custom start position.
const MaxPiles = 8

// Settings are the game defaults taken from configuration.
type Settings struct {
	DefaultPiles      nim.Position
	MaxPileSize       int
	AIMoveDelay       time.Duration // <= 0 plays the computer's reply inline
	DefaultDifficulty string
}

// GameService runs human-vs-computer games. Each game owns a Solver whose
// memo table lives as long as the game session; access to it is serialized
// by the per-game lock.
type GameService struct {
	gameRepo    repository.GameRepository
	cache       repository.GameCache
	broadcaster Broadcaster
	settings    Settings
	newSolver   func() *nim.Solver

	sessions  sync.Map // gameID -> *nim.Solver
	gameLocks sync.Map // gameID -> *sync.Mutex
}

// NewGameService creates a GameService.
func NewGameService(gameRepo repository.GameRepository, cache repository.GameCache, broadcaster Broadcaster, settings Settings) *GameService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if settings.DefaultPiles.Len() == 0 {
		settings.DefaultPiles = nim.DefaultPosition()
	}
	if settings.MaxPileSize <= 0 {
		settings.MaxPileSize = 20
	}
	if d, err := bot.ParseDifficulty(settings.DefaultDifficulty); err == nil {
		settings.DefaultDifficulty = d
	} else {
		settings.DefaultDifficulty = bot.DifficultyHard
	}
	return &GameService{
		gameRepo:    gameRepo,
		cache:       cache,
		broadcaster: broadcaster,
		settings:    settings,
		newSolver:   func() *nim.Solver { return nim.NewSolver() },
	}
}

// SetSolverFactory overrides how per-game solvers are built, e.g. to seed
// their random source.
func (s *GameService) SetSolverFactory(f func() *nim.Solver) {
	s.newSolver = f
}

// AIMoveDelay is the pause before the computer replies.
func (s *GameService) AIMoveDelay() time.Duration {
	return s.settings.AIMoveDelay
}

func (s *GameService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *GameService) solver(gameID string) *nim.Solver {
	if v, ok := s.sessions.Load(gameID); ok {
		return v.(*nim.Solver)
	}
	v, _ := s.sessions.LoadOrStore(gameID, s.newSolver())
	return v.(*nim.Solver)
}

func (s *GameService) validatePiles(piles []int) (nim.Position, error) {
	if len(piles) == 0 {
		return s.settings.DefaultPiles, nil
	}
	if len(piles) > MaxPiles {
		return nim.Position{}, fmt.Errorf("%w: at most %d piles", ErrInvalidPiles, MaxPiles)
	}
	p, err := nim.NewPosition(piles...)
	if err != nil {
		return nim.Position{}, fmt.Errorf("%w: %v", ErrInvalidPiles, err)
	}
	if n, ok := lo.Find(piles, func(n int) bool { return n > s.settings.MaxPileSize }); ok {
		return nim.Position{}, fmt.Errorf("%w: pile of %d exceeds the maximum of %d", ErrInvalidPiles, n, s.settings.MaxPileSize)
	}
	if nim.IsTerminal(p) {
		return nim.Position{}, fmt.Errorf("%w: every pile is empty", ErrInvalidPiles)
	}
	if err := nim.CheckSolvable(p); err != nil {
		return nim.Position{}, fmt.Errorf("%w: %v", ErrInvalidPiles, err)
	}
	return p, nil
}

func parseDifficulty(d string) (string, error) {
	parsed, err := bot.ParseDifficulty(d)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, d)
	}
	return parsed, nil
}

// CreateGame starts a new game with the human to move. Empty difficulty and
// piles fall back to the configured defaults.
func (s *GameService) CreateGame(ctx context.Context, userID, difficulty string, piles []int) (*model.Game, error) {
	if difficulty == "" {
		difficulty = s.settings.DefaultDifficulty
	}
	difficulty, err := parseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	start, err := s.validatePiles(piles)
	if err != nil {
		return nil, err
	}

	game, err := s.gameRepo.Create(ctx, userID, difficulty, start)
	if err != nil {
		return nil, err
	}
	s.sessions.Store(game.ID, s.newSolver())
	if err := s.cacheGame(ctx, game); err != nil {
		log.Warn().Err(err).Str("gameId", game.ID).Msg("Failed to cache new game")
	}

	log.Info().Str("gameId", game.ID).Str("userId", userID).Str("difficulty", difficulty).
		Str("piles", start.Key()).Msg("Game created")
	s.broadcaster.BroadcastGameEvent(game.ID, EventGameCreated, game)
	return game, nil
}

// loadGame returns the live state from Redis, falling back to Postgres and
// rehydrating the cache.
func (s *GameService) loadGame(ctx context.Context, gameID string) (*model.Game, error) {
	raw, err := s.cache.GetGameState(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Cache read failed, using database")
	}
	if raw != nil {
		var g model.Game
		if err := json.Unmarshal(raw, &g); err == nil {
			return &g, nil
		}
		log.Warn().Str("gameId", gameID).Msg("Discarding unreadable cached game state")
	}

	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		s.gameLocks.Delete(gameID)
		return nil, ErrGameNotFound
	}
	if err := s.cacheGame(ctx, game); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to rehydrate game state")
	}
	return game, nil
}

func (s *GameService) cacheGame(ctx context.Context, g *model.Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	return s.cache.SetGameState(ctx, g.ID, data)
}

// saveGame persists the position to Postgres, then refreshes the cache.
func (s *GameService) saveGame(ctx context.Context, g *model.Game) error {
	now := time.Now()
	g.UpdatedAt = now
	if g.Status == model.StatusFinished {
		g.FinishedAt = &now
		if err := s.gameRepo.SetFinished(ctx, g.ID, g.Piles, g.Winner); err != nil {
			return err
		}
	} else if err := s.gameRepo.UpdateState(ctx, g.ID, g.Piles, g.HumanTurn); err != nil {
		return err
	}
	return s.cacheGame(ctx, g)
}

func (s *GameService) ownedGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.CreatorID != userID {
		return nil, ErrNotInGame
	}
	return game, nil
}

// GetGame returns a game owned by userID.
func (s *GameService) GetGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	return s.ownedGame(ctx, gameID, userID)
}

// ListGames returns the user's games. Filter "active" or "finished" narrows
// by status; anything else returns all.
func (s *GameService) ListGames(ctx context.Context, userID, filter string) ([]model.Game, error) {
	games, err := s.gameRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if filter != model.StatusActive && filter != model.StatusFinished {
		return games, nil
	}
	return lo.Filter(games, func(g model.Game, _ int) bool { return g.Status == filter }), nil
}

// ApplyHumanMove plays the human's move. If the board is emptied the human
// wins; otherwise the computer's reply is scheduled.
func (s *GameService) ApplyHumanMove(ctx context.Context, gameID, userID string, move nim.Move) (*model.Game, error) {
	game, err := s.applyHumanMove(ctx, gameID, userID, move)
	if err != nil {
		return nil, err
	}
	if game.Status == model.StatusActive && s.settings.AIMoveDelay <= 0 {
		return s.PlayAIMove(ctx, gameID)
	}
	return game, nil
}

func (s *GameService) applyHumanMove(ctx context.Context, gameID, userID string, move nim.Move) (*model.Game, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.ownedGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.StatusActive {
		return nil, ErrGameNotActive
	}
	if !game.HumanTurn {
		return nil, ErrNotYourTurn
	}

	next, err := nim.Apply(game.Piles, move)
	if err != nil {
		return nil, err
	}
	game.Piles = next
	game.LastMove = &model.PlayedMove{By: model.PlayerHuman, Move: move}
	if nim.IsTerminal(next) {
		game.Status = model.StatusFinished
		game.Winner = model.PlayerHuman
	} else {
		game.HumanTurn = false
	}
	if err := s.saveGame(ctx, game); err != nil {
		return nil, fmt.Errorf("save human move: %w", err)
	}

	log.Info().Str("gameId", gameID).Str("move", move.String()).Str("piles", next.Key()).Msg("Human moved")
	s.broadcaster.BroadcastGameEvent(gameID, EventHumanMoved, game)
	if game.Status == model.StatusFinished {
		s.endGame(game)
		return game, nil
	}
	if s.settings.AIMoveDelay > 0 {
		if err := s.cache.SetAITimer(ctx, gameID, s.settings.AIMoveDelay); err != nil {
			// The poller picks the game up once it is overdue.
			log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to set AI timer")
		}
	}
	return game, nil
}

// PlayAIMove plays the computer's move for a game waiting on it. It is a
// no-op returning the current game when it is not the computer's turn, so
// duplicate timer triggers are harmless.
func (s *GameService) PlayAIMove(ctx context.Context, gameID string) (*model.Game, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.StatusActive || game.HumanTurn {
		return game, nil
	}

	strategy := bot.StrategyForDifficulty(game.Difficulty)
	move, ok := strategy.ChooseMove(s.solver(gameID), game.Piles)
	if !ok {
		return nil, fmt.Errorf("%s strategy found no move in active game %s at %s", strategy.Name(), gameID, game.Piles)
	}
	next, err := nim.Apply(game.Piles, move)
	if err != nil {
		return nil, fmt.Errorf("ai move: %w", err)
	}

	game.Piles = next
	game.LastMove = &model.PlayedMove{By: model.PlayerAI, Move: move}
	if nim.IsTerminal(next) {
		game.Status = model.StatusFinished
		game.Winner = model.PlayerAI
	} else {
		game.HumanTurn = true
	}
	if err := s.saveGame(ctx, game); err != nil {
		return nil, fmt.Errorf("save ai move: %w", err)
	}
	if err := s.cache.ClearAITimer(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to clear AI timer")
	}

	log.Info().Str("gameId", gameID).Str("strategy", strategy.Name()).Str("move", move.String()).
		Str("piles", next.Key()).Msg("Computer moved")
	s.broadcaster.BroadcastGameEvent(gameID, EventAIMoved, game)
	if game.Status == model.StatusFinished {
		s.endGame(game)
	}
	return game, nil
}

// endGame drops the finished game's solver session. Reset or analysis
// builds a fresh one on demand.
func (s *GameService) endGame(game *model.Game) {
	s.sessions.Delete(game.ID)
	log.Info().Str("gameId", game.ID).Str("winner", game.Winner).Msg("Game finished")
	s.broadcaster.BroadcastGameEvent(game.ID, EventGameEnded, map[string]any{
		"winner": game.Winner,
		"game":   game,
	})
}

// ResetGame restores the start position with the human to move and clears
// the game's solver cache. A non-empty difficulty replaces the current one.
func (s *GameService) ResetGame(ctx context.Context, gameID, userID, difficulty string) (*model.Game, error) {
	if difficulty != "" {
		var err error
		if difficulty, err = parseDifficulty(difficulty); err != nil {
			return nil, err
		}
	}

	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.ownedGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.Reset(ctx, gameID, difficulty); err != nil {
		return nil, err
	}
	if difficulty != "" {
		game.Difficulty = difficulty
	}
	game.Piles = game.InitialPiles
	game.HumanTurn = true
	game.Status = model.StatusActive
	game.Winner = ""
	game.LastMove = nil
	game.FinishedAt = nil
	game.UpdatedAt = time.Now()

	s.solver(gameID).ClearCache()
	if err := s.cache.ClearAITimer(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to clear AI timer on reset")
	}
	if err := s.cacheGame(ctx, game); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to cache reset game")
	}

	log.Info().Str("gameId", gameID).Str("difficulty", game.Difficulty).Msg("Game reset")
	s.broadcaster.BroadcastGameEvent(gameID, EventGameReset, game)
	return game, nil
}

// Analyze reports the solver's verdict on the current position for the
// player to move.
func (s *GameService) Analyze(ctx context.Context, gameID, userID string) (*model.Analysis, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.ownedGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	var sv *nim.Solver
	if game.Status == model.StatusActive {
		sv = s.solver(gameID)
	} else {
		// Finished games keep no session.
		sv = s.newSolver()
	}
	a := &model.Analysis{
		GameID:       gameID,
		Piles:        game.Piles,
		ToMove:       game.ToMove(),
		Outcome:      sv.Value(game.Piles),
		NimSum:       nim.NimSum(game.Piles),
		WinningMoves: sv.WinningMoves(game.Piles),
	}
	if m, ok := sv.BestMove(game.Piles); ok {
		a.BestMove = &m
	}
	if a.WinningMoves == nil {
		a.WinningMoves = []nim.Move{}
	}
	a.Solver = sv.Stats()
	return a, nil
}

// DeleteGame removes a game with its live state and solver session.
func (s *GameService) DeleteGame(ctx context.Context, gameID, userID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		s.gameLocks.Delete(gameID)
		return ErrGameNotFound
	}
	if game.CreatorID != userID {
		return ErrNotInGame
	}
	if err := s.gameRepo.Delete(ctx, gameID); err != nil {
		return err
	}
	if err := s.cache.DeleteGameData(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to delete cached game data")
	}
	s.sessions.Delete(gameID)
	// Still held until return; later callers find no game whichever lock they get.
	s.gameLocks.Delete(gameID)
	log.Info().Str("gameId", gameID).Str("userId", userID).Msg("Game deleted")
	return nil
}

// RecoverActiveGames rehydrates Redis from Postgres after a restart and
// reschedules the computer's move for games waiting on it.
func (s *GameService) RecoverActiveGames(ctx context.Context) error {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	if len(games) == 0 {
		log.Info().Msg("No active games to recover")
		return nil
	}

	log.Info().Int("count", len(games)).Msg("Recovering active games after restart")
	for i := range games {
		game := &games[i]
		if err := s.cacheGame(ctx, game); err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore game state")
			continue
		}
		if game.HumanTurn {
			continue
		}
		if s.settings.AIMoveDelay <= 0 {
			if _, err := s.PlayAIMove(ctx, game.ID); err != nil {
				log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to play AI move during recovery")
			}
			continue
		}
		if err := s.cache.SetAITimer(ctx, game.ID, s.settings.AIMoveDelay); err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore AI timer")
		}
	}
	return nil
}
