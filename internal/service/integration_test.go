//go:build integration

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/nim-arena/internal/model"
	"github.com/freeeve/nim-arena/internal/repository/postgres"
	redisrepo "github.com/freeeve/nim-arena/internal/repository/redis"
	"github.com/freeeve/nim-arena/internal/testutil"
	"github.com/freeeve/nim-arena/pkg/nim"
)

type testEnv struct {
	db       *sql.DB
	rdb      *goredis.Client
	userRepo *postgres.UserRepo
	gameRepo *postgres.GameRepo
	cache    *redisrepo.Client
}

var env *testEnv

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &testEnv{
			db:       db,
			rdb:      rdb,
			userRepo: postgres.NewUserRepo(db),
			gameRepo: postgres.NewGameRepo(db),
			cache:    redisrepo.NewClientFromPool(rdb),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := e.userRepo.Upsert(context.Background(), "dev", "dev-"+name, name, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestIntegrationTimerDrivesComputerMove(t *testing.T) {
	e := setupEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := NewGameService(e.gameRepo, e.cache, nil, Settings{AIMoveDelay: 100 * time.Millisecond})
	go NewTimerListener(e.rdb, svc, e.gameRepo).Start(ctx)

	u := e.user(t, "alice")
	g, err := svc.CreateGame(ctx, u.ID, "hard", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ApplyHumanMove(ctx, g.ID, u.ID, nim.Move{PileIndex: 0, Amount: 1}); err != nil {
		t.Fatalf("human move: %v", err)
	}

	// Keyspace events or the poller must hand the move back to the human.
	for {
		got, err := e.gameRepo.FindByID(ctx, g.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.HumanTurn {
			if nim.NimSum(got.Piles) != 0 {
				t.Errorf("hard computer left nim-sum %d", nim.NimSum(got.Piles))
			}
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("computer never moved")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func TestIntegrationRecoverAfterCacheLoss(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	svc := NewGameService(e.gameRepo, e.cache, nil, Settings{AIMoveDelay: time.Minute})
	u := e.user(t, "bob")
	g, _ := svc.CreateGame(ctx, u.ID, "easy", []int{2, 2})
	svc.ApplyHumanMove(ctx, g.ID, u.ID, nim.Move{PileIndex: 0, Amount: 1})

	testutil.CleanupRedis(t, e.rdb)
	if err := svc.RecoverActiveGames(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	raw, err := e.cache.GetGameState(ctx, g.ID)
	if err != nil || raw == nil {
		t.Fatalf("expected restored state, got %s, %v", raw, err)
	}
	if n := e.rdb.Exists(ctx, "game:"+g.ID+":ai_timer").Val(); n != 1 {
		t.Error("expected AI timer restored")
	}

	got, err := svc.GetGame(ctx, g.ID, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Piles.Key() != "1,2" || got.HumanTurn {
		t.Errorf("unexpected recovered game %s human=%v", got.Piles, got.HumanTurn)
	}
}

func TestIntegrationResetAndDelete(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	svc := NewGameService(e.gameRepo, e.cache, nil, Settings{})
	u := e.user(t, "carol")
	g, _ := svc.CreateGame(ctx, u.ID, "hard", []int{1, 3})
	// AIMoveDelay 0 means the computer replies inline.
	played, err := svc.ApplyHumanMove(ctx, g.ID, u.ID, nim.Move{PileIndex: 1, Amount: 1})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !played.HumanTurn && played.Status == model.StatusActive {
		t.Fatal("expected the computer to have replied")
	}

	reset, err := svc.ResetGame(ctx, g.ID, u.ID, "medium")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	stored, _ := e.gameRepo.FindByID(ctx, g.ID)
	if stored.Piles.Key() != "1,3" || stored.Difficulty != "medium" || !reset.HumanTurn {
		t.Errorf("unexpected reset state %+v", stored)
	}

	if err := svc.DeleteGame(ctx, g.ID, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if raw, _ := e.cache.GetGameState(ctx, g.ID); raw != nil {
		t.Error("expected live state removed")
	}
}
