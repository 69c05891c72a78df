package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "game:"
	stateSuffix    = ":state"
	aiTimerSuffix  = ":ai_timer"
	stateRetention = 7 * 24 * time.Hour
)

func stateKey(gameID string) string   { return keyPrefix + gameID + stateSuffix }
func aiTimerKey(gameID string) string { return keyPrefix + gameID + aiTimerSuffix }

// GameIDFromAITimerKey extracts the game ID from an expired AI timer key.
func GameIDFromAITimerKey(key string) (string, bool) {
	if !strings.HasPrefix(key, keyPrefix) || !strings.HasSuffix(key, aiTimerSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), aiTimerSuffix)
	if id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}

// SetGameState stores the live game state JSON. Idle games age out; Postgres
// remains the source for rehydration.
func (c *Client) SetGameState(ctx context.Context, gameID string, state json.RawMessage) error {
	if err := c.rdb.Set(ctx, stateKey(gameID), []byte(state), stateRetention).Err(); err != nil {
		return fmt.Errorf("set game state: %w", err)
	}
	return nil
}

// GetGameState retrieves the live game state JSON, or nil when absent.
func (c *Client) GetGameState(ctx context.Context, gameID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetAITimer creates a key that expires after delay. The expiry event is the
// signal to play the computer's move.
func (c *Client) SetAITimer(ctx context.Context, gameID string, delay time.Duration) error {
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := c.rdb.Set(ctx, aiTimerKey(gameID), due, delay).Err(); err != nil {
		return fmt.Errorf("set ai timer: %w", err)
	}
	return nil
}

// ClearAITimer removes a pending AI timer.
func (c *Client) ClearAITimer(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, aiTimerKey(gameID)).Err()
}

// DeleteGameData removes all Redis data for a game.
func (c *Client) DeleteGameData(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, stateKey(gameID), aiTimerKey(gameID)).Err()
}
