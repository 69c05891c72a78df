package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/nim-arena/internal/repository"
	redisrepo "github.com/freeeve/nim-arena/internal/repository/redis"
)

const (
	pollInterval = 5 * time.Second
	// overdueGrace is how long past its delay a computer move may wait before
	// the poller plays it.
	overdueGrace = 3 * time.Second
)

// TimerListener plays the computer's move when a game's AI timer key expires
// in Redis. A polling fallback covers missed notifications.
type TimerListener struct {
	rdb      *redis.Client
	gameSvc  *GameService
	gameRepo repository.GameRepository
}

// NewTimerListener creates a TimerListener.
func NewTimerListener(rdb *redis.Client, gameSvc *GameService, gameRepo repository.GameRepository) *TimerListener {
	return &TimerListener{rdb: rdb, gameSvc: gameSvc, gameRepo: gameRepo}
}

// Start listens for expiry events in the background and polls until ctx is
// done.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollOverdue(ctx)
}

func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired AI timers")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

func (t *TimerListener) pollOverdue(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", pollInterval).Msg("AI move poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("AI move poller stopped")
			return
		case <-ticker.C:
			t.playOverdue(ctx)
		}
	}
}

// playOverdue plays the computer's move in games that have waited past the
// delay plus grace.
func (t *TimerListener) playOverdue(ctx context.Context) {
	games, err := t.gameRepo.ListAwaitingAI(ctx, t.gameSvc.AIMoveDelay()+overdueGrace)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list games awaiting the computer")
		return
	}
	for _, g := range games {
		log.Info().Str("gameId", g.ID).Time("updatedAt", g.UpdatedAt).Msg("Poller playing overdue AI move")
		if _, err := t.gameSvc.PlayAIMove(ctx, g.ID); err != nil {
			log.Error().Err(err).Str("gameId", g.ID).Msg("AI move failed from poller")
		}
	}
}

func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	gameID, ok := redisrepo.GameIDFromAITimerKey(key)
	if !ok {
		return
	}
	log.Debug().Str("gameId", gameID).Msg("AI timer expired")
	if _, err := t.gameSvc.PlayAIMove(ctx, gameID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("AI move failed after timer expiry")
	}
}
