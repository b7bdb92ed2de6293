// Package game defines the engine contract shared by every game, the
// registry that exposes engines to the transport layer, and the error
// taxonomy of the operation contract.
package game

import (
	"context"
	"errors"
	"time"

	"chiphouse/internal/model"
	"chiphouse/internal/settlement"
)

// LockWait bounds how long an operation waits to serialize on a session
// before giving up with lock.ErrLockTimeout.
const LockWait = 5 * time.Second

// Errors of the engine operation contract. Validation and state errors
// are rejected before any mutation; resource errors abort the in-flight
// settlement atomically.
var (
	ErrInvalidParams       = errors.New("invalid game parameters")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrActionNotAllowed    = errors.New("action not allowed")
	ErrNothingToCashOut    = errors.New("nothing to cash out")
	ErrInsufficientBalance = settlement.ErrInsufficientBalance
	ErrPlayerNotFound      = settlement.ErrPlayerNotFound
)

// SessionView is the state an engine returns to the caller after every
// operation: enough to render the session without another query, plus
// the map of actions that are currently legal.
type SessionView struct {
	SessionID string              `json:"session_id"`
	Game      string              `json:"game"`
	Status    model.SessionStatus `json:"status"`
	Stake     int64               `json:"stake"`
	Payout    int64               `json:"payout"`
	Balance   int64               `json:"balance"`
	Actions   map[string]bool     `json:"actions"`
	State     any                 `json:"state"`
}

// Engine is the contract every game engine implements. Start debits the
// stake and creates a session; Act applies a player decision to an
// active session; Cashout settles an active session early where the
// game allows it.
type Engine interface {
	// Game returns the game tag, used for routing and ledger entries.
	Game() string

	Start(ctx context.Context, playerID, stake int64, params map[string]any) (*SessionView, error)
	Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*SessionView, error)
	Cashout(ctx context.Context, playerID int64, sessionID string) (*SessionView, error)
}
