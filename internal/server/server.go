// Package server exposes the engine operation contract over HTTP. The
// handlers are a thin JSON mapping; all rules live in the engines.
package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"chiphouse/internal/config"
	"chiphouse/internal/game"
	"chiphouse/internal/game/crash"
	"chiphouse/internal/game/poker"
	"chiphouse/internal/repository"
	"chiphouse/internal/settlement"
)

// FiberServer is the HTTP facade over the game platform.
type FiberServer struct {
	*fiber.App

	registry *game.Registry
	coord    *settlement.Coordinator
	players  *repository.PlayerRepository
	txs      *repository.TransactionRepository
	poker    *poker.Relay
	crash    *crash.Engine
}

// Deps collects the collaborators of the HTTP facade.
type Deps struct {
	Registry *game.Registry
	Coord    *settlement.Coordinator
	Players  *repository.PlayerRepository
	Txs      *repository.TransactionRepository
	Poker    *poker.Relay
	Crash    *crash.Engine
}

// New creates the fiber app and registers all routes.
func New(cfg *config.ServerConfig, deps Deps) *FiberServer {
	readTimeout, writeTimeout := 10*time.Second, 10*time.Second
	if cfg != nil {
		if cfg.ReadTimeout > 0 {
			readTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout > 0 {
			writeTimeout = cfg.WriteTimeout
		}
	}

	s := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader: "chiphouse",
			AppName:      "chiphouse",
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		}),
		registry: deps.Registry,
		coord:    deps.Coord,
		players:  deps.Players,
		txs:      deps.Txs,
		poker:    deps.Poker,
		crash:    deps.Crash,
	}

	s.App.Use(recover.New())
	s.registerRoutes()
	return s
}

func (s *FiberServer) registerRoutes() {
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api")

	players := api.Group("/players")
	players.Post("/", s.createPlayerHandler)
	players.Get("/top", s.topPlayersHandler)
	players.Get("/:id", s.getPlayerHandler)
	players.Get("/:id/balance", s.balanceHandler)
	players.Post("/:id/deposit", s.depositHandler)
	players.Get("/:id/transactions", s.transactionsHandler)
	players.Get("/:id/sessions", s.sessionsHandler)

	games := api.Group("/games")
	games.Post("/:game/start", s.startHandler)
	games.Post("/:game/act", s.actHandler)
	games.Post("/:game/cashout", s.cashoutHandler)

	api.Post("/poker/delta", s.pokerDeltaHandler)
	api.Get("/crash/history", s.crashHistoryHandler)

	admin := api.Group("/admin")
	admin.Post("/sessions/purge", s.purgeSessionsHandler)
}
