package server

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"chiphouse/internal/game"
	"chiphouse/internal/game/poker"
	"chiphouse/internal/model"
	"chiphouse/internal/pkg/lock"
	"chiphouse/internal/repository"
	"chiphouse/internal/settlement"
)

type startRequest struct {
	PlayerID int64          `json:"player_id"`
	Stake    int64          `json:"stake"`
	Params   map[string]any `json:"params"`
}

type actRequest struct {
	PlayerID  int64          `json:"player_id"`
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params"`
}

type cashoutRequest struct {
	PlayerID  int64  `json:"player_id"`
	SessionID string `json:"session_id"`
}

type createPlayerRequest struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type deltaRequest struct {
	PlayerID int64 `json:"player_id"`
	Delta    int64 `json:"delta"`
}

type purgeRequest struct {
	Before time.Time `json:"before"`
}

// sessionSummary is what the listing endpoint discloses about a session.
// The stored payload of an active session holds the hidden outcome (mine
// cells, the crash point, the remaining deck), so it is only included
// once the session is terminal.
type sessionSummary struct {
	SessionID string              `json:"session_id"`
	Game      string              `json:"game"`
	Status    model.SessionStatus `json:"status"`
	Stake     int64               `json:"stake"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	State     json.RawMessage     `json:"state,omitempty"`
}

// fail maps the engine error taxonomy to HTTP status codes. Unknown
// errors are reported as a generic server fault without internal detail.
func fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, game.ErrInvalidParams),
		errors.Is(err, poker.ErrDeltaOutOfRange),
		errors.Is(err, settlement.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, game.ErrPlayerNotFound),
		errors.Is(err, repository.ErrPlayerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, game.ErrSessionNotActive),
		errors.Is(err, game.ErrActionNotAllowed),
		errors.Is(err, game.ErrNothingToCashOut),
		errors.Is(err, game.ErrInsufficientBalance),
		errors.Is(err, lock.ErrLockTimeout):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func (s *FiberServer) engine(c *fiber.Ctx) (game.Engine, error) {
	e, ok := s.registry.Get(c.Params("game"))
	if !ok {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown game"})
	}
	return e, nil
}

func playerParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"games":  s.registry.Games(),
	})
}

func (s *FiberServer) startHandler(c *fiber.Ctx) error {
	e, err := s.engine(c)
	if e == nil {
		return err
	}
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	view, err := e.Start(c.Context(), req.PlayerID, req.Stake, req.Params)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

func (s *FiberServer) actHandler(c *fiber.Ctx) error {
	e, err := s.engine(c)
	if e == nil {
		return err
	}
	var req actRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	view, err := e.Act(c.Context(), req.PlayerID, req.SessionID, req.Action, req.Params)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	e, err := s.engine(c)
	if e == nil {
		return err
	}
	var req cashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	view, err := e.Cashout(c.Context(), req.PlayerID, req.SessionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

func (s *FiberServer) createPlayerHandler(c *fiber.Ctx) error {
	var req createPlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.Balance < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "balance must not be negative"})
	}
	player, err := s.players.Create(c.Context(), req.Name, req.Balance)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(player)
}

func (s *FiberServer) getPlayerHandler(c *fiber.Ctx) error {
	id, err := playerParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid player id"})
	}
	player, err := s.players.GetByID(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(player)
}

func (s *FiberServer) topPlayersHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	players, err := s.players.GetTopPlayers(c.Context(), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(players)
}

func (s *FiberServer) balanceHandler(c *fiber.Ctx) error {
	id, err := playerParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid player id"})
	}
	balance, err := s.coord.Balance(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"player_id": id, "balance": balance})
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	id, err := playerParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid player id"})
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	balance, err := s.coord.Deposit(c.Context(), id, req.Amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"player_id": id, "balance": balance})
}

func (s *FiberServer) transactionsHandler(c *fiber.Ctx) error {
	id, err := playerParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid player id"})
	}
	limit := c.QueryInt("limit", 50)
	gameTag := c.Query("game")

	if gameTag != "" {
		txs, err := s.txs.GetByPlayerIDAndGame(c.Context(), id, gameTag, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(txs)
	}
	txs, err := s.txs.GetByPlayerID(c.Context(), id, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(txs)
}

func (s *FiberServer) sessionsHandler(c *fiber.Ctx) error {
	id, err := playerParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid player id"})
	}
	recs, err := s.coord.Sessions().ListByPlayer(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	out := make([]sessionSummary, 0, len(recs))
	for _, rec := range recs {
		sum := sessionSummary{
			SessionID: rec.ID,
			Game:      rec.Game,
			Status:    rec.Status,
			Stake:     rec.Stake,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.Status.Terminal() {
			sum.State = rec.Payload
		}
		out = append(out, sum)
	}
	return c.JSON(out)
}

func (s *FiberServer) pokerDeltaHandler(c *fiber.Ctx) error {
	var req deltaRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	balance, err := s.poker.ApplyDelta(c.Context(), req.PlayerID, req.Delta)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"player_id": req.PlayerID, "balance": balance})
}

func (s *FiberServer) crashHistoryHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"history": s.crash.History()})
}

// purgeSessionsHandler removes terminal sessions updated before the
// given cutoff. Purging is an explicit operator action; nothing expires
// sessions in the background.
func (s *FiberServer) purgeSessionsHandler(c *fiber.Ctx) error {
	var req purgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Before.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "before timestamp is required"})
	}
	purged, err := s.coord.Sessions().PurgeTerminal(c.Context(), req.Before)
	if err != nil {
		return fail(c, err)
	}
	log.Info().Int("purged", purged).Time("before", req.Before).Msg("Terminal sessions purged")
	return c.JSON(fiber.Map{"purged": purged})
}
