// Package model defines the data models shared across the wagering core.
package model

import "time"

// Player represents an account holding a chip balance.
// Balances are whole chips and are only ever mutated through atomic
// increment/decrement statements, never read-modify-write.
type Player struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Transaction represents an immutable ledger entry for a balance change.
// The ledger is append-only: entries are never updated or deleted.
type Transaction struct {
	ID        int64     `db:"id"`
	PlayerID  int64     `db:"player_id"`
	Amount    int64     `db:"amount"`
	Kind      string    `db:"kind"`
	Game      string    `db:"game"`
	CreatedAt time.Time `db:"created_at"`
}

// Transaction kinds.
const (
	TxKindStake   = "STAKE"
	TxKindPayout  = "PAYOUT"
	TxKindDeposit = "DEPOSIT"
)

// SessionStatus is the lifecycle state of a game session. ACTIVE is the
// only non-terminal state; a terminal session rejects further mutating
// actions.
type SessionStatus string

const (
	StatusActive    SessionStatus = "ACTIVE"
	StatusWon       SessionStatus = "WON"
	StatusLost      SessionStatus = "LOST"
	StatusPush      SessionStatus = "PUSH"
	StatusCashedOut SessionStatus = "CASHED_OUT"
)

// Terminal reports whether sessions in this status accept no further
// mutating actions.
func (s SessionStatus) Terminal() bool {
	return s != StatusActive
}

// Game tags used on sessions and ledger entries.
const (
	GameBlackjack = "blackjack"
	GameBaccarat  = "baccarat"
	GameRoulette  = "roulette"
	GameMines     = "mines"
	GameCrash     = "crash"
	GameLadder    = "ladder"
	GamePoker     = "poker"
)
