package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/pkg/nim"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository persists game sessions. Only the current position is
// stored; individual moves are not.
type GameRepository interface {
	Create(ctx context.Context, creatorID, difficulty string, piles nim.Position) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	// ListAwaitingAI returns active games on the computer's turn whose last
	// update is older than idle.
	ListAwaitingAI(ctx context.Context, idle time.Duration) ([]model.Game, error)
	UpdateState(ctx context.Context, gameID string, piles nim.Position, humanTurn bool) error
	SetFinished(ctx context.Context, gameID string, piles nim.Position, winner string) error
	Reset(ctx context.Context, gameID, difficulty string) error
	Delete(ctx context.Context, gameID string) error
}

// GameCache defines live game state operations (Redis).
type GameCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	GetGameState(ctx context.Context, gameID string) (json.RawMessage, error)
	// SetAITimer schedules the computer's move; its expiry is the trigger.
	SetAITimer(ctx context.Context, gameID string, delay time.Duration) error
	ClearAITimer(ctx context.Context, gameID string) error
	DeleteGameData(ctx context.Context, gameID string) error
}
