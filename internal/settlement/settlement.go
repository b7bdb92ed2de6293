// Package settlement applies the money movement for a game outcome as
// one all-or-nothing unit: stake debit, payout credit, ledger entries
// and the session update either all happen or none do.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"chiphouse/internal/session"
)

// Errors surfaced by settlement.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrInvalidAmount       = errors.New("amount must not be negative")
)

// Settler atomically applies a debit/credit pair against a player's
// balance and appends the matching ledger entries. Implementations must
// guarantee the balance never goes negative and that a failed call
// leaves balance and ledger untouched. The relational implementation
// lives in internal/repository; a memory implementation below backs the
// engine tests.
type Settler interface {
	// Settle debits then credits the player's balance, recording a STAKE
	// entry for the debit and a PAYOUT entry for the credit (entries are
	// skipped for zero amounts). Returns the resulting balance.
	Settle(ctx context.Context, playerID, debit, credit int64, game string) (int64, error)
	// Deposit credits the player's balance outside any game, recording a
	// DEPOSIT entry.
	Deposit(ctx context.Context, playerID, amount int64) (int64, error)
	// Balance returns the player's current balance.
	Balance(ctx context.Context, playerID int64) (int64, error)
}

// Coordinator couples a Settler with the session store so engines get a
// single entry point that keeps money and session state in step.
type Coordinator struct {
	settler  Settler
	sessions session.Store
}

// NewCoordinator creates a Coordinator over the given settler and store.
func NewCoordinator(settler Settler, sessions session.Store) *Coordinator {
	return &Coordinator{settler: settler, sessions: sessions}
}

// Sessions exposes the underlying session store.
func (c *Coordinator) Sessions() session.Store {
	return c.sessions
}

// Balance returns the player's current balance.
func (c *Coordinator) Balance(ctx context.Context, playerID int64) (int64, error) {
	return c.settler.Balance(ctx, playerID)
}

// Deposit funds a player's account.
func (c *Coordinator) Deposit(ctx context.Context, playerID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return c.settler.Deposit(ctx, playerID, amount)
}

// Settle applies the money movement and persists the session record. If
// persisting the record fails after the balance was already moved, the
// movement is reversed so the caller observes all-or-nothing.
func (c *Coordinator) Settle(ctx context.Context, playerID, debit, credit int64, game string, rec *session.Record) (int64, error) {
	if debit < 0 || credit < 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := c.settler.Settle(ctx, playerID, debit, credit, game)
	if err != nil {
		return 0, err
	}

	if rec != nil {
		if err := c.sessions.Put(ctx, rec); err != nil {
			// Compensate with the reverse movement. The extra ledger
			// entries are intentional: the ledger is append-only, so the
			// reversal is recorded rather than erased.
			if _, rbErr := c.settler.Settle(ctx, playerID, credit, debit, game); rbErr != nil {
				log.Error().Err(rbErr).
					Int64("player_id", playerID).
					Str("game", game).
					Msg("Settlement rollback failed, balance and session diverged")
			}
			return 0, fmt.Errorf("settlement: persist session: %w", err)
		}
	}

	return balance, nil
}

// ApplyDelta applies a bounded signed balance change, used by the relay
// games that settle externally-computed outcomes. Negative deltas record
// a STAKE entry, positive ones a PAYOUT entry.
func (c *Coordinator) ApplyDelta(ctx context.Context, playerID, delta int64, game string) (int64, error) {
	if delta < 0 {
		return c.settler.Settle(ctx, playerID, -delta, 0, game)
	}
	return c.settler.Settle(ctx, playerID, 0, delta, game)
}

// PersistSession stores a session record without moving money, used for
// non-settling state transitions such as a blackjack hit.
func (c *Coordinator) PersistSession(ctx context.Context, rec *session.Record) error {
	return c.sessions.Put(ctx, rec)
}
