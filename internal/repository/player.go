// Package repository provides the relational data access layer.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chiphouse/internal/model"
)

// Common errors for repository operations.
var (
	ErrPlayerNotFound = errors.New("player not found")
)

// PlayerRepository handles player data persistence.
type PlayerRepository struct {
	pool *pgxpool.Pool
}

// NewPlayerRepository creates a new PlayerRepository instance.
func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

// Create creates a new player with the given name and opening balance.
func (r *PlayerRepository) Create(ctx context.Context, name string, balance int64) (*model.Player, error) {
	const query = `
		INSERT INTO players (name, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, balance, created_at, updated_at
	`

	var player model.Player
	err := r.pool.QueryRow(ctx, query, name, balance).Scan(
		&player.ID,
		&player.Name,
		&player.Balance,
		&player.CreatedAt,
		&player.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return &player, nil
}

// GetByID retrieves a player by id.
// Returns ErrPlayerNotFound if the player does not exist.
func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*model.Player, error) {
	const query = `
		SELECT id, name, balance, created_at, updated_at
		FROM players
		WHERE id = $1
	`

	var player model.Player
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&player.ID,
		&player.Name,
		&player.Balance,
		&player.CreatedAt,
		&player.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return &player, nil
}

// Exists checks if a player with the given id exists.
func (r *PlayerRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM players WHERE id = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check player existence: %w", err)
	}

	return exists, nil
}

// GetTopPlayers retrieves the top N players by balance.
func (r *PlayerRepository) GetTopPlayers(ctx context.Context, limit int) ([]*model.Player, error) {
	const query = `
		SELECT id, name, balance, created_at, updated_at
		FROM players
		ORDER BY balance DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top players: %w", err)
	}
	defer rows.Close()

	var players []*model.Player
	for rows.Next() {
		var player model.Player
		err := rows.Scan(
			&player.ID,
			&player.Name,
			&player.Balance,
			&player.CreatedAt,
			&player.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, &player)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}

	return players, nil
}
