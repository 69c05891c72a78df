package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/nim-arena/internal/bot"
	"github.com/freeeve/nim-arena/pkg/nim"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		matchup   string
		pilesFlag string
		numGames  int
		workers   int
		seed      int64
		alternate bool
		jsonOut   bool
		verbose   bool
	)

	flag.StringVar(&matchup, "matchup", "hard-vs-easy", "Tier matchup, first mover first (e.g. hard-vs-easy, medium)")
	flag.StringVar(&pilesFlag, "piles", "3,4,5", "Starting piles, comma separated")
	flag.IntVar(&numGames, "n", 100, "Number of games to run")
	flag.IntVar(&workers, "workers", 4, "Concurrency (parallel games)")
	flag.Int64Var(&seed, "seed", 0, "Base seed (0 = random)")
	flag.BoolVar(&alternate, "alternate", false, "Swap who moves first on every other game")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&verbose, "v", false, "Log each finished game")
	flag.Parse()

	if !verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	first, second, err := bot.ParseMatchup(matchup)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -matchup")
	}
	start, err := nim.ParsePosition(pilesFlag)
	if err == nil {
		err = nim.CheckSolvable(start)
	}
	if err != nil || nim.IsTerminal(start) {
		log.Fatal().Err(err).Str("piles", pilesFlag).Msg("Bad -piles")
	}
	if numGames < 1 || workers < 1 {
		log.Fatal().Int("n", numGames).Int("workers", workers).Msg("-n and -workers must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	results := make([]*bot.ArenaResult, numGames)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range numGames {
		g.Go(func() error {
			cfg := bot.ArenaConfig{
				GameName: fmt.Sprintf("%s-vs-%s-%d", first, second, i+1),
				First:    first,
				Second:   second,
				Piles:    start,
			}
			if alternate && i%2 == 1 {
				cfg.First, cfg.Second = second, first
			}
			if seed != 0 {
				cfg.Seed = seed + int64(i)
			}
			result, err := bot.RunGame(gctx, cfg)
			if err != nil {
				return fmt.Errorf("game %d: %w", i+1, err)
			}
			results[i] = result
			if verbose {
				log.Debug().Int("game", i+1).Str("winner", result.Strategy).Int("plies", len(result.Moves)).Msg("Game completed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Match aborted")
	}

	done := lo.Compact(results)
	if jsonOut {
		printJSON(done, numGames)
		return
	}
	printSummary(done, first, second, start)
}

func printSummary(results []*bot.ArenaResult, first, second string, start nim.Position) {
	fmt.Printf("\nResults (%d games from %s, nim-sum %d):\n", len(results), start, nim.NimSum(start))
	if len(results) == 0 {
		return
	}

	byStrategy := lo.CountValuesBy(results, func(r *bot.ArenaResult) string { return r.Strategy })
	firstMoverWins := lo.CountBy(results, func(r *bot.ArenaResult) bool { return r.Winner == 0 })
	plies := lo.SumBy(results, func(r *bot.ArenaResult) int { return len(r.Moves) })

	if first == second {
		fmt.Printf("  %-8s  self-play\n", first)
	} else {
		for _, tier := range []string{first, second} {
			wins := byStrategy[tier]
			fmt.Printf("  %-8s  %4d wins  (%.1f%%)\n", tier, wins, 100*float64(wins)/float64(len(results)))
		}
	}
	fmt.Printf("  first mover won %d/%d, avg plies %.1f\n",
		firstMoverWins, len(results), float64(plies)/float64(len(results)))
}

func printJSON(results []*bot.ArenaResult, total int) {
	out := struct {
		Total   int                `json:"total"`
		Errors  int                `json:"errors"`
		Results []*bot.ArenaResult `json:"results"`
	}{
		Total:   total,
		Errors:  total - len(results),
		Results: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error().Err(err).Msg("Failed to write results")
	}
}
