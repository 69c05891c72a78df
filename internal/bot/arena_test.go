package bot

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/freeeve/nim-arena/pkg/nim"
)

func TestRunGame_HardFirstAlwaysWinsFromWinningStart(t *testing.T) {
	for _, second := range []string{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		for seed := int64(1); seed <= 5; seed++ {
			result, err := RunGame(context.Background(), ArenaConfig{
				GameName: "hard-vs-" + second,
				First:    DifficultyHard,
				Second:   second,
				Seed:     seed,
			})
			if err != nil {
				t.Fatalf("hard vs %s (seed %d): %v", second, seed, err)
			}
			if result.Winner != 0 {
				t.Errorf("hard moving first from 3-4-5 lost to %s (seed %d)", second, seed)
			}
			if result.Strategy != DifficultyHard {
				t.Errorf("winner strategy = %q, want %q", result.Strategy, DifficultyHard)
			}
		}
	}
}

func TestRunGame_HardSecondWinsFromLostStart(t *testing.T) {
	result, err := RunGame(context.Background(), ArenaConfig{
		First:  DifficultyEasy,
		Second: DifficultyHard,
		Piles:  nim.MustPosition(1, 2, 3),
		Seed:   42,
	})
	if err != nil {
		t.Fatalf("RunGame: %v", err)
	}
	if result.Winner != 1 {
		t.Errorf("winner = %d, want 1", result.Winner)
	}
}

func TestRunGame_MovesReplay(t *testing.T) {
	result, err := RunGame(context.Background(), ArenaConfig{
		First:  DifficultyEasy,
		Second: DifficultyEasy,
		Piles:  nim.MustPosition(4, 1, 6),
		Seed:   9,
	})
	if err != nil {
		t.Fatalf("RunGame: %v", err)
	}
	if len(result.Moves) == 0 {
		t.Fatal("expected moves")
	}

	pos := result.Start
	for i, am := range result.Moves {
		if am.Player != i%2 {
			t.Errorf("ply %d played by %d, players must alternate", i, am.Player)
		}
		next, err := nim.Apply(pos, am.Move)
		if err != nil {
			t.Fatalf("ply %d: %v", i, err)
		}
		if !next.Equal(am.After) {
			t.Errorf("ply %d: recorded %s, replay gives %s", i, am.After, next)
		}
		pos = next
	}
	if !nim.IsTerminal(pos) {
		t.Errorf("final position %s is not terminal", pos)
	}
	if last := result.Moves[len(result.Moves)-1].Player; last != result.Winner {
		t.Errorf("winner = %d, last mover = %d", result.Winner, last)
	}
}

func TestRunGame_SeedIsReproducible(t *testing.T) {
	tests := []struct {
		first, second string
	}{
		{DifficultyEasy, DifficultyEasy},
		{DifficultyMedium, DifficultyMedium},
		{DifficultyMedium, DifficultyEasy},
	}
	for _, tt := range tests {
		cfg := ArenaConfig{First: tt.first, Second: tt.second, Piles: nim.MustPosition(5, 5, 5), Seed: 77}
		a, err := RunGame(context.Background(), cfg)
		if err != nil {
			t.Fatalf("%s-vs-%s: %v", tt.first, tt.second, err)
		}
		// Draws from the package source in between must not change the replay.
		for i := 0; i < 25; i++ {
			botFloat64()
		}
		b, err := RunGame(context.Background(), cfg)
		if err != nil {
			t.Fatalf("%s-vs-%s: %v", tt.first, tt.second, err)
		}
		if !reflect.DeepEqual(a.Moves, b.Moves) {
			t.Errorf("%s-vs-%s with seed %d played differently:\n%v\n%v", tt.first, tt.second, cfg.Seed, a.Moves, b.Moves)
		}
	}
}

func TestRunGame_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunGame(ctx, ArenaConfig{First: DifficultyHard, Second: DifficultyHard})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunGame_DefaultsToStandardStart(t *testing.T) {
	result, err := RunGame(context.Background(), ArenaConfig{First: DifficultyHard, Second: DifficultyHard, Seed: 1})
	if err != nil {
		t.Fatalf("RunGame: %v", err)
	}
	if !result.Start.Equal(nim.DefaultPosition()) {
		t.Errorf("start = %s, want %s", result.Start, nim.DefaultPosition())
	}
}

func TestParseMatchup(t *testing.T) {
	tests := []struct {
		input         string
		first, second string
		wantErr       error
	}{
		{"hard-vs-easy", DifficultyHard, DifficultyEasy, nil},
		{"medium", DifficultyMedium, DifficultyMedium, nil},
		{"hard-vs-godlike", "", "", ErrUnknownDifficulty},
	}
	for _, tt := range tests {
		first, second, err := ParseMatchup(tt.input)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseMatchup(%q) err = %v, want %v", tt.input, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMatchup(%q): %v", tt.input, err)
			continue
		}
		if first != tt.first || second != tt.second {
			t.Errorf("ParseMatchup(%q) = %q, %q, want %q, %q", tt.input, first, second, tt.first, tt.second)
		}
	}
}
