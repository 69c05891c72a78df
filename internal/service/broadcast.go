package service

// Game events pushed to subscribers.
const (
	EventGameCreated = "game_created"
	EventHumanMoved  = "human_moved"
	EventAIMoved     = "ai_moved"
	EventGameReset   = "game_reset"
	EventGameEnded   = "game_ended"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastGameEvent(gameID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastGameEvent(string, string, any) {}
