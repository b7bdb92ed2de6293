package game

import (
	"context"
	"errors"
	"math"

	"chiphouse/internal/session"
)

// LoadOwned fetches a session record and verifies game tag and
// ownership. A session belonging to another player reports
// ErrSessionNotFound rather than revealing that the id exists.
func LoadOwned(ctx context.Context, store session.Store, playerID int64, sessionID, game string) (*session.Record, error) {
	rec, err := store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if rec.PlayerID != playerID || rec.Game != game {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

// Round2 rounds a multiplier to 2 decimal places, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Payout converts a stake and multiplier into whole chips.
func Payout(stake int64, multiplier float64) int64 {
	return int64(math.Round(float64(stake) * multiplier))
}
