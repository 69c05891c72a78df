// Command nim plays Nim against the computer in the terminal. The human moves
// first and whoever takes the last item wins.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/nim-arena/internal/bot"
	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/pkg/nim"
)

const rule = "========================================"

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	var (
		pilesFlag  string
		difficulty string
		seed       int64
	)
	flag.StringVar(&pilesFlag, "piles", "3,4,5", "Starting piles, comma separated")
	flag.StringVar(&difficulty, "difficulty", bot.DifficultyHard, "Computer strength: easy, medium or hard")
	flag.Int64Var(&seed, "seed", 0, "Seed for the computer's random choices (0 = random)")
	flag.Parse()

	start, err := parseStart(pilesFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -piles")
	}
	difficulty, err = bot.ParseDifficulty(difficulty)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -difficulty")
	}

	if _, err := play(os.Stdin, os.Stdout, start, difficulty, seed); err != nil {
		log.Fatal().Err(err).Msg("Game aborted")
	}
}

// parseStart parses -piles and rejects boards that are empty or too large
// for the computer to search.
func parseStart(s string) (nim.Position, error) {
	start, err := nim.ParsePosition(s)
	if err != nil {
		return nim.Position{}, err
	}
	if nim.IsTerminal(start) {
		return nim.Position{}, fmt.Errorf("%w: every pile is empty", nim.ErrInvalidPosition)
	}
	if err := nim.CheckSolvable(start); err != nil {
		return nim.Position{}, err
	}
	return start, nil
}

// play runs one game and returns the winner, model.PlayerHuman or
// model.PlayerAI.
func play(in io.Reader, out io.Writer, start nim.Position, difficulty string, seed int64) (string, error) {
	var opts []nim.Option
	var coin *rand.Rand
	if seed != 0 {
		opts = append(opts, nim.WithRand(rand.New(rand.NewSource(seed))))
		coin = rand.New(rand.NewSource(seed + 1))
	}
	solver := nim.NewSolver(opts...)
	strategy := bot.NewStrategy(difficulty, coin)
	scanner := bufio.NewScanner(in)

	printBanner(out, difficulty)

	pos := start
	humanTurn := true
	for !nim.IsTerminal(pos) {
		fmt.Fprintf(out, "Current piles: %s\n", pos)

		if humanTurn {
			fmt.Fprintln(out, "\n--- YOUR TURN ---")
			move, err := readMove(scanner, out, pos)
			if errors.Is(err, errBadInput) {
				fmt.Fprintln(out, ">> Invalid input! Please enter numbers.")
				continue
			}
			if err != nil {
				return "", err
			}
			next, err := nim.Apply(pos, move)
			if err != nil {
				fmt.Fprintln(out, ">> Invalid move! Please try again.")
				continue
			}
			pos = next
			humanTurn = false
			continue
		}

		fmt.Fprintf(out, "\n--- COMPUTER TURN (%s) ---\n", strategy.Name())
		move, ok := strategy.ChooseMove(solver, pos)
		if !ok {
			return "", fmt.Errorf("%s strategy returned no move from %s", strategy.Name(), pos)
		}
		next, err := nim.Apply(pos, move)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(out, "Computer removed %d from pile %d\n", move.Amount, move.PileIndex)
		pos = next
		humanTurn = true
	}

	// The side that just moved emptied the board.
	winner := model.PlayerHuman
	if humanTurn {
		winner = model.PlayerAI
	}

	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintf(out, "FINAL STATE: %s\n", pos)
	if winner == model.PlayerHuman {
		fmt.Fprintln(out, "CONGRATULATIONS! You took the last item and won!")
	} else {
		fmt.Fprintln(out, "GAME OVER! The computer took the last item and wins.")
	}
	fmt.Fprintln(out, rule)
	return winner, nil
}

func printBanner(out io.Writer, difficulty string) {
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "      NIM vs. COMPUTER (%s)\n", difficulty)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "1. There are several piles of items.")
	fmt.Fprintln(out, "2. On your turn, remove any number of items from ONE pile.")
	fmt.Fprintln(out, "3. Whoever takes the last item WINS.")
	fmt.Fprintln(out, rule+"\n")
}

var errBadInput = errors.New("not a number")

// readMove prompts for a pile index and an amount. Range checks are left to
// nim.Apply.
func readMove(scanner *bufio.Scanner, out io.Writer, pos nim.Position) (nim.Move, error) {
	fmt.Fprintf(out, "Choose pile index (0 - %d): ", pos.Len()-1)
	pile, err := readInt(scanner)
	if err != nil {
		return nim.Move{}, err
	}
	fmt.Fprintf(out, "Amount to remove from pile %d: ", pile)
	amount, err := readInt(scanner)
	if err != nil {
		return nim.Move{}, err
	}
	return nim.Move{PileIndex: pile, Amount: amount}, nil
}

func readInt(scanner *bufio.Scanner) (int, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, errBadInput
	}
	return n, nil
}
