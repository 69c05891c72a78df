package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/pkg/nim"
)

type mockGameRepo struct {
	mu    sync.Mutex
	games map[string]*model.Game
	seq   int
	// failWrites makes every write return an error.
	failWrites bool
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{games: make(map[string]*model.Game)}
}

var errMockWrite = errors.New("mock write failure")

func (m *mockGameRepo) Create(_ context.Context, creatorID, difficulty string, piles nim.Position) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return nil, errMockWrite
	}
	m.seq++
	now := time.Now()
	g := &model.Game{
		ID:           fmt.Sprintf("game-%d", m.seq),
		CreatorID:    creatorID,
		Difficulty:   difficulty,
		InitialPiles: piles,
		Piles:        piles,
		HumanTurn:    true,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.games[g.ID] = g
	cp := *g
	return &cp, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Game
	for i := 1; i <= m.seq; i++ {
		if g, ok := m.games[fmt.Sprintf("game-%d", i)]; ok && g.CreatorID == userID {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Game
	for i := 1; i <= m.seq; i++ {
		if g, ok := m.games[fmt.Sprintf("game-%d", i)]; ok && g.Status == model.StatusActive {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListAwaitingAI(_ context.Context, idle time.Duration) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	var result []model.Game
	for _, g := range m.games {
		if g.Status == model.StatusActive && !g.HumanTurn && g.UpdatedAt.Before(cutoff) {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *mockGameRepo) UpdateState(_ context.Context, gameID string, piles nim.Position, humanTurn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errMockWrite
	}
	g, ok := m.games[gameID]
	if !ok {
		return nil
	}
	g.Piles = piles
	g.HumanTurn = humanTurn
	g.UpdatedAt = time.Now()
	return nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID string, piles nim.Position, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errMockWrite
	}
	g, ok := m.games[gameID]
	if !ok {
		return nil
	}
	now := time.Now()
	g.Piles = piles
	g.Status = model.StatusFinished
	g.Winner = winner
	g.UpdatedAt = now
	g.FinishedAt = &now
	return nil
}

func (m *mockGameRepo) Reset(_ context.Context, gameID, difficulty string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return nil
	}
	g.Piles = g.InitialPiles
	g.HumanTurn = true
	g.Status = model.StatusActive
	g.Winner = ""
	g.FinishedAt = nil
	if difficulty != "" {
		g.Difficulty = difficulty
	}
	g.UpdatedAt = time.Now()
	return nil
}

func (m *mockGameRepo) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, gameID)
	return nil
}

// backdate makes a game look idle for d.
func (m *mockGameRepo) backdate(gameID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[gameID]; ok {
		g.UpdatedAt = time.Now().Add(-d)
	}
}

type mockCache struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
	timers map[string]time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{
		states: make(map[string]json.RawMessage),
		timers: make(map[string]time.Duration),
	}
}

func (m *mockCache) SetGameState(_ context.Context, gameID string, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[gameID] = append(json.RawMessage(nil), state...)
	return nil
}

func (m *mockCache) GetGameState(_ context.Context, gameID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[gameID], nil
}

func (m *mockCache) SetAITimer(_ context.Context, gameID string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[gameID] = delay
	return nil
}

func (m *mockCache) ClearAITimer(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, gameID)
	return nil
}

func (m *mockCache) DeleteGameData(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, gameID)
	delete(m.timers, gameID)
	return nil
}

func (m *mockCache) hasTimer(gameID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[gameID]
	return ok
}

func (m *mockCache) evict(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, gameID)
}

type recordedEvent struct {
	gameID string
	typ    string
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *mockBroadcaster) BroadcastGameEvent(gameID, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{gameID: gameID, typ: eventType})
}

func (b *mockBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.typ
	}
	return out
}
