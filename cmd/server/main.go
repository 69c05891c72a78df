package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/nim-arena/internal/auth"
	"github.com/freeeve/nim-arena/internal/config"
	"github.com/freeeve/nim-arena/internal/handler"
	"github.com/freeeve/nim-arena/internal/logger"
	"github.com/freeeve/nim-arena/internal/middleware"
	"github.com/freeeve/nim-arena/internal/repository/postgres"
	redisrepo "github.com/freeeve/nim-arena/internal/repository/redis"
	"github.com/freeeve/nim-arena/internal/service"
)

func main() {
	_ = godotenv.Load()
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Str("piles", cfg.DefaultPiles.Key()).Dur("aiMoveDelay", cfg.AIMoveDelay).
		Str("difficulty", cfg.DefaultDifficulty).Bool("devMode", cfg.DevMode).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()
	if err := redisClient.EnableExpiryEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to enable Redis keyspace notifications, relying on the poller")
	}

	userRepo := postgres.NewUserRepo(db)
	gameRepo := postgres.NewGameRepo(db)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	wsHub := handler.NewHub()
	gameSvc := service.NewGameService(gameRepo, redisClient, wsHub, service.Settings{
		DefaultPiles:      cfg.DefaultPiles,
		MaxPileSize:       cfg.MaxPileSize,
		AIMoveDelay:       cfg.AIMoveDelay,
		DefaultDifficulty: cfg.DefaultDifficulty,
	})
	timerListener := service.NewTimerListener(redisClient.Underlying(), gameSvc, gameRepo)

	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo, cfg.DevMode)
	userHandler := handler.NewUserHandler(userRepo)
	gameHandler := handler.NewGameHandler(gameSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, gameSvc)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.JSON)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
		r.Post("/refresh", authHandler.RefreshToken)
		r.Get("/dev", authHandler.DevLogin)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The upgrade authenticates itself; browsers cannot send the header.
		r.Get("/ws", wsHandler.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JSON)
			r.Use(auth.Middleware(jwtMgr))

			r.Get("/users/me", userHandler.GetMe)
			r.Patch("/users/me", userHandler.UpdateMe)

			r.Post("/games", gameHandler.CreateGame)
			r.Get("/games", gameHandler.ListGames)
			r.Get("/games/{id}", gameHandler.GetGame)
			r.Delete("/games/{id}", gameHandler.DeleteGame)
			r.Post("/games/{id}/moves", gameHandler.MakeMove)
			r.Post("/games/{id}/reset", gameHandler.ResetGame)
			r.Get("/games/{id}/analysis", gameHandler.Analysis)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Rehydrate Redis from Postgres after a restart.
	if err := gameSvc.RecoverActiveGames(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover active games (non-fatal)")
	}
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
