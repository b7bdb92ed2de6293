// Package main is the entry point for the chiphouse game server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chiphouse/internal/config"
	"chiphouse/internal/game"
	"chiphouse/internal/game/baccarat"
	"chiphouse/internal/game/blackjack"
	"chiphouse/internal/game/crash"
	"chiphouse/internal/game/ladder"
	"chiphouse/internal/game/mines"
	"chiphouse/internal/game/poker"
	"chiphouse/internal/game/roulette"
	"chiphouse/internal/pkg/db"
	"chiphouse/internal/pkg/lock"
	"chiphouse/internal/repository"
	"chiphouse/internal/rng"
	"chiphouse/internal/server"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Initialize session store
	sessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session store")
	}

	// Initialize settlement over the relational store
	settler := repository.NewSettler(dbPool.Pool)
	coord := settlement.NewCoordinator(settler, sessions)

	// Initialize repositories
	playerRepo := repository.NewPlayerRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)

	// Per-session serialization and randomness
	locks := lock.NewKeyedLock()
	src := rng.NewCrypto()

	// Initialize game registry and register engines
	registry := game.NewRegistry()

	crashEngine := crash.New(&crash.Config{
		MinStake: cfg.Games.Crash.MinStake,
		MaxStake: cfg.Games.Crash.MaxStake,
		Edge:     cfg.Games.Crash.HouseEdge,
	}, coord, locks, src)

	engines := []game.Engine{
		blackjack.New(&blackjack.Config{
			MinStake: cfg.Games.Blackjack.MinStake,
			MaxStake: cfg.Games.Blackjack.MaxStake,
		}, coord, locks, src),
		baccarat.New(&baccarat.Config{
			MinStake: cfg.Games.Baccarat.MinStake,
			MaxStake: cfg.Games.Baccarat.MaxStake,
		}, coord, src),
		roulette.New(&roulette.Config{
			MinStake: cfg.Games.Roulette.MinStake,
			MaxStake: cfg.Games.Roulette.MaxStake,
		}, coord, src),
		mines.New(&mines.Config{
			MinStake: cfg.Games.Mines.MinStake,
			MaxStake: cfg.Games.Mines.MaxStake,
		}, coord, locks, src),
		crashEngine,
		ladder.New(&ladder.Config{
			MinStake: cfg.Games.Ladder.MinStake,
			MaxStake: cfg.Games.Ladder.MaxStake,
			Steps:    cfg.Games.Ladder.Steps,
		}, coord, locks, src),
	}
	for _, e := range engines {
		if err := registry.Register(e); err != nil {
			log.Fatal().Err(err).Str("game", e.Game()).Msg("Failed to register game")
		}
	}

	pokerRelay := poker.New(&poker.Config{MaxDelta: cfg.Games.Poker.MaxDelta}, coord)

	log.Info().
		Int("game_count", registry.Count()).
		Strs("games", registry.Games()).
		Msg("Games registered")

	// Initialize HTTP server
	srv := server.New(&cfg.Server, server.Deps{
		Registry: registry,
		Coord:    coord,
		Players:  playerRepo,
		Txs:      txRepo,
		Poker:    pokerRelay,
		Crash:    crashEngine,
	})

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr()).Msg("Server is starting...")
		if err := srv.Listen(cfg.Server.Addr()); err != nil {
			log.Fatal().Err(err).Msg("Server stopped unexpectedly")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// newSessionStore builds the session store selected by configuration.
func newSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Sessions.Backend {
	case "memory":
		log.Info().Msg("Using in-memory session store")
		return session.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis session store")
		return session.NewRedisStore(client), nil
	default:
		log.Info().Str("path", cfg.Sessions.FilePath).Msg("Using signed file session store")
		return session.NewFileStore(cfg.Sessions.FilePath, []byte(cfg.Sessions.Secret))
	}
}
