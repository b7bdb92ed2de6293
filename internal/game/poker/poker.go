// Package poker implements the relay settlement for the externally-run
// poker tables: no game logic, only bounded signed balance deltas
// recorded against the poker game tag.
package poker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"chiphouse/internal/model"
	"chiphouse/internal/settlement"
)

// ErrDeltaOutOfRange reports a delta whose magnitude exceeds the
// configured bound.
var ErrDeltaOutOfRange = errors.New("delta out of range")

// DefaultMaxDelta bounds |delta| when no configuration is supplied.
const DefaultMaxDelta = 100000

// Config holds relay configuration.
type Config struct {
	MaxDelta int64
}

// Relay applies externally-computed poker outcomes to player balances.
type Relay struct {
	coord    *settlement.Coordinator
	maxDelta int64
}

// New creates a poker relay.
func New(cfg *Config, coord *settlement.Coordinator) *Relay {
	maxDelta := int64(DefaultMaxDelta)
	if cfg != nil && cfg.MaxDelta > 0 {
		maxDelta = cfg.MaxDelta
	}
	return &Relay{coord: coord, maxDelta: maxDelta}
}

// Game returns the game tag.
func (r *Relay) Game() string {
	return model.GamePoker
}

// ApplyDelta applies a signed balance change. Negative deltas are
// recorded as stakes, positive ones as payouts. Returns the resulting
// balance.
func (r *Relay) ApplyDelta(ctx context.Context, playerID, delta int64) (int64, error) {
	if delta > r.maxDelta || delta < -r.maxDelta {
		return 0, fmt.Errorf("%w: |%d| exceeds %d", ErrDeltaOutOfRange, delta, r.maxDelta)
	}

	balance, err := r.coord.ApplyDelta(ctx, playerID, delta, r.Game())
	if err != nil {
		return 0, err
	}

	log.Info().
		Int64("player_id", playerID).
		Int64("delta", delta).
		Int64("balance", balance).
		Msg("Poker delta applied")

	return balance, nil
}
