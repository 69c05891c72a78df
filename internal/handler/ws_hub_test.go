package handler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/internal/service"
	"github.com/freeeve/nim-arena/pkg/nim"
)

func newTestConn(userID string) *WSConn {
	return &WSConn{
		conn:   nil, // hub tests never touch the socket
		userID: userID,
		send:   make(chan []byte, 16),
	}
}

func recvEvent(t *testing.T, c *WSConn) WSEvent {
	t.Helper()
	select {
	case msg := <-c.send:
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return WSEvent{}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")

	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}

	hub.Unregister(c)
	hub.Unregister(c) // second call must not panic on a closed channel
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubSubscribeRequiresRegistration(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")

	hub.Subscribe(c, "game-1")
	if hub.GameSubscriberCount("game-1") != 0 {
		t.Error("unregistered connection should not be subscribed")
	}

	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "game-1")
	if hub.GameSubscriberCount("game-1") != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.GameSubscriberCount("game-1"))
	}
	hub.Unsubscribe(c, "game-1")
	if hub.GameSubscriberCount("game-1") != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.GameSubscriberCount("game-1"))
	}
}

func TestHubBroadcastGameEvent(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("user-1")
	c2 := newTestConn("user-2") // not subscribed
	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)
	hub.Subscribe(c1, "game-1")

	hub.BroadcastGameEvent("game-1", service.EventAIMoved, map[string]any{
		"move": nim.Move{PileIndex: 2, Amount: 3},
	})

	event := recvEvent(t, c1)
	if event.Type != service.EventAIMoved || event.GameID != "game-1" {
		t.Errorf("unexpected event %+v", event)
	}
	select {
	case <-c2.send:
		t.Error("user-2 should not have received game-1's event")
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	c := &WSConn{userID: "user-1", send: make(chan []byte, 1)}
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "game-1")

	hub.BroadcastGameEvent("game-1", service.EventHumanMoved, nil)
	hub.BroadcastGameEvent("game-1", service.EventAIMoved, nil)

	if got := recvEvent(t, c).Type; got != service.EventHumanMoved {
		t.Errorf("expected the first event to be kept, got %s", got)
	}
	if len(c.send) != 0 {
		t.Error("second event should have been dropped")
	}
}

func TestHubUnregisterCleansUpSubscriptions(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	hub.Register(c)
	hub.Subscribe(c, "game-1")
	hub.Subscribe(c, "game-2")

	hub.Unregister(c)

	if hub.GameSubscriberCount("game-1") != 0 || hub.GameSubscriberCount("game-2") != 0 {
		t.Error("expected no subscribers after unregister")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestConn("user")
			hub.Register(c)
			hub.Subscribe(c, "game-1")
			hub.BroadcastGameEvent("game-1", service.EventGameEnded, nil)
			hub.Unsubscribe(c, "game-1")
			hub.Unregister(c)
		}()
	}

	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}

type stubAccess struct {
	games map[string]*model.Game
}

func (s stubAccess) GetGame(_ context.Context, gameID, userID string) (*model.Game, error) {
	g, ok := s.games[gameID]
	if !ok {
		return nil, service.ErrGameNotFound
	}
	if g.CreatorID != userID {
		return nil, service.ErrNotInGame
	}
	return g, nil
}

func TestWSSubscribeChecksOwnership(t *testing.T) {
	hub := NewHub()
	access := stubAccess{games: map[string]*model.Game{
		"game-1": {ID: "game-1", CreatorID: "user-1", Piles: nim.DefaultPosition(), Status: model.StatusActive},
	}}
	h := NewWSHandler(hub, nil, access)

	owner := newTestConn("user-1")
	other := newTestConn("user-2")
	hub.Register(owner)
	hub.Register(other)
	defer hub.Unregister(owner)
	defer hub.Unregister(other)

	h.handleMessage(context.Background(), owner, ClientMessage{Action: "subscribe", GameID: "game-1"})
	if ev := recvEvent(t, owner); ev.Type != EventSubscribed {
		t.Errorf("expected subscribed, got %+v", ev)
	}

	h.handleMessage(context.Background(), other, ClientMessage{Action: "subscribe", GameID: "game-1"})
	if ev := recvEvent(t, other); ev.Type != EventError {
		t.Errorf("expected error for non-owner, got %+v", ev)
	}

	h.handleMessage(context.Background(), other, ClientMessage{Action: "subscribe", GameID: "missing"})
	if ev := recvEvent(t, other); ev.Type != EventError {
		t.Errorf("expected error for unknown game, got %+v", ev)
	}

	if n := hub.GameSubscriberCount("game-1"); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}

	h.handleMessage(context.Background(), owner, ClientMessage{Action: "unsubscribe", GameID: "game-1"})
	if ev := recvEvent(t, owner); ev.Type != EventUnsubscribed {
		t.Errorf("expected unsubscribed, got %+v", ev)
	}
	if n := hub.GameSubscriberCount("game-1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestWSRejectsBadMessages(t *testing.T) {
	hub := NewHub()
	h := NewWSHandler(hub, nil, stubAccess{})
	c := newTestConn("user-1")
	hub.Register(c)
	defer hub.Unregister(c)

	h.handleMessage(context.Background(), c, ClientMessage{Action: "subscribe"})
	if ev := recvEvent(t, c); ev.Type != EventError {
		t.Errorf("expected error for missing game_id, got %+v", ev)
	}
	h.handleMessage(context.Background(), c, ClientMessage{Action: "move", GameID: "game-1"})
	if ev := recvEvent(t, c); ev.Type != EventError {
		t.Errorf("expected error for unknown action, got %+v", ev)
	}
}
