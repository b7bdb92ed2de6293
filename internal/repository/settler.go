package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chiphouse/internal/model"
	"chiphouse/internal/settlement"
)

// Settler is the relational implementation of settlement.Settler. Each
// call runs in one database transaction so the balance change and its
// ledger entries commit or roll back together. The debit is guarded in
// SQL (balance >= debit) so concurrent settlements against the same
// player can never drive the balance negative or lose an update.
type Settler struct {
	pool *pgxpool.Pool
}

// NewSettler creates a new Settler over the given pool.
func NewSettler(pool *pgxpool.Pool) *Settler {
	return &Settler{pool: pool}
}

func (s *Settler) Settle(ctx context.Context, playerID, debit, credit int64, game string) (int64, error) {
	if debit < 0 || credit < 0 {
		return 0, settlement.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	const debitQuery = `
		UPDATE players
		SET balance = balance - $2 + $3, updated_at = NOW()
		WHERE id = $1 AND balance >= $2
		RETURNING balance
	`

	var balance int64
	err = tx.QueryRow(ctx, debitQuery, playerID, debit, credit).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Guard failed: either the player is missing or the balance
			// cannot cover the debit. Distinguish for the caller.
			exists, exErr := s.playerExists(ctx, tx, playerID)
			if exErr != nil {
				return 0, exErr
			}
			if !exists {
				return 0, settlement.ErrPlayerNotFound
			}
			return 0, settlement.ErrInsufficientBalance
		}
		return 0, fmt.Errorf("failed to apply settlement: %w", err)
	}

	const insertQuery = `
		INSERT INTO transactions (player_id, amount, kind, game, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if debit > 0 {
		if _, err := tx.Exec(ctx, insertQuery, playerID, -debit, model.TxKindStake, game); err != nil {
			return 0, fmt.Errorf("failed to record stake: %w", err)
		}
	}
	if credit > 0 {
		if _, err := tx.Exec(ctx, insertQuery, playerID, credit, model.TxKindPayout, game); err != nil {
			return 0, fmt.Errorf("failed to record payout: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit settlement: %w", err)
	}

	return balance, nil
}

func (s *Settler) Deposit(ctx context.Context, playerID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, settlement.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin deposit: %w", err)
	}
	defer tx.Rollback(ctx)

	const creditQuery = `
		UPDATE players
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`

	var balance int64
	err = tx.QueryRow(ctx, creditQuery, playerID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, settlement.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("failed to apply deposit: %w", err)
	}

	const insertQuery = `
		INSERT INTO transactions (player_id, amount, kind, game, created_at)
		VALUES ($1, $2, $3, '', NOW())
	`
	if _, err := tx.Exec(ctx, insertQuery, playerID, amount, model.TxKindDeposit); err != nil {
		return 0, fmt.Errorf("failed to record deposit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit deposit: %w", err)
	}

	return balance, nil
}

func (s *Settler) Balance(ctx context.Context, playerID int64) (int64, error) {
	const query = `SELECT balance FROM players WHERE id = $1`

	var balance int64
	err := s.pool.QueryRow(ctx, query, playerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, settlement.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

func (s *Settler) playerExists(ctx context.Context, tx pgx.Tx, playerID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM players WHERE id = $1)`

	var exists bool
	if err := tx.QueryRow(ctx, query, playerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check player existence: %w", err)
	}
	return exists, nil
}
