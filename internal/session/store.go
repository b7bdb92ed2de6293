// Package session provides the game session records and the pluggable
// stores that persist them. Durability is a configuration concern: all
// engines share one store, which may be in-memory, signed-file or redis
// backed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chiphouse/internal/model"
)

// Errors for session store operations.
var (
	ErrNotFound = errors.New("session not found")
)

// Record is the generic session shape shared by every game. The
// game-specific state lives in Payload as JSON so any backend can
// persist it without knowing the engine.
type Record struct {
	ID        string              `json:"id"`
	PlayerID  int64               `json:"player_id"`
	Game      string              `json:"game"`
	Status    model.SessionStatus `json:"status"`
	Stake     int64               `json:"stake"`
	Payload   json.RawMessage     `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Clone returns a deep copy so callers never share payload bytes with
// the store.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Payload != nil {
		cp.Payload = make(json.RawMessage, len(r.Payload))
		copy(cp.Payload, r.Payload)
	}
	return &cp
}

// DecodePayload unmarshals the game-specific state into dst.
func (r *Record) DecodePayload(dst any) error {
	return json.Unmarshal(r.Payload, dst)
}

// EncodePayload marshals the game-specific state into the record.
func (r *Record) EncodePayload(src any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	r.Payload = b
	return nil
}

// Store persists session records. Terminal sessions are retained for
// audit; PurgeTerminal is an explicit operator action, never run from a
// background timer.
type Store interface {
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec *Record) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
	// ListByPlayer returns all records owned by a player.
	ListByPlayer(ctx context.Context, playerID int64) ([]*Record, error)
	// PurgeTerminal removes terminal records last updated before cutoff
	// and returns how many were removed.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}
