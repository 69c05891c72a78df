package redis

import "testing"

func TestGameIDFromAITimerKey(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"game:abc-123:ai_timer", "abc-123", true},
		{aiTimerKey("g1"), "g1", true},
		{"game:abc-123:state", "", false},
		{"game::ai_timer", "", false},
		{"game:a:b:ai_timer", "", false},
		{"other:abc:ai_timer", "", false},
	}
	for _, tt := range tests {
		got, ok := GameIDFromAITimerKey(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("GameIDFromAITimerKey(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}
