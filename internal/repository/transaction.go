package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"chiphouse/internal/model"
)

// TransactionRepository reads the append-only transaction ledger.
// Writes happen exclusively inside Settler transactions; there is no
// update or delete path anywhere in the codebase.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// GetByPlayerID retrieves transactions for a player, newest first.
func (r *TransactionRepository) GetByPlayerID(ctx context.Context, playerID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, player_id, amount, kind, game, created_at
		FROM transactions
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.PlayerID,
			&tx.Amount,
			&tx.Kind,
			&tx.Game,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// GetByPlayerIDAndGame retrieves transactions for a player filtered by game tag.
func (r *TransactionRepository) GetByPlayerIDAndGame(ctx context.Context, playerID int64, game string, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, player_id, amount, kind, game, created_at
		FROM transactions
		WHERE player_id = $1 AND game = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, playerID, game, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.PlayerID,
			&tx.Amount,
			&tx.Kind,
			&tx.Game,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// GetNetByGame returns a player's net amount across all entries for a
// game tag. Useful for audit: the sum of a session's entries must match
// its reported outcome.
func (r *TransactionRepository) GetNetByGame(ctx context.Context, playerID int64, game string) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE player_id = $1 AND game = $2
	`

	var net int64
	err := r.pool.QueryRow(ctx, query, playerID, game).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("failed to get net by game: %w", err)
	}

	return net, nil
}
