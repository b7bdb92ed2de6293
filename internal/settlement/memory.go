package settlement

import (
	"context"
	"sync"
	"time"

	"chiphouse/internal/model"
)

// MemorySettler is a process-local Settler used by engine tests and
// development setups without a database. It enforces the same
// guarantees as the relational implementation: atomic guarded debits
// and an append-only ledger.
type MemorySettler struct {
	mu       sync.Mutex
	balances map[int64]int64
	ledger   []model.Transaction
	nextTxID int64
}

// NewMemorySettler creates an empty MemorySettler.
func NewMemorySettler() *MemorySettler {
	return &MemorySettler{balances: make(map[int64]int64)}
}

// AddPlayer registers a player with an opening balance.
func (m *MemorySettler) AddPlayer(playerID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] = balance
}

func (m *MemorySettler) Settle(ctx context.Context, playerID, debit, credit int64, game string) (int64, error) {
	if debit < 0 || credit < 0 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[playerID]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	if balance < debit {
		return 0, ErrInsufficientBalance
	}

	balance = balance - debit + credit
	m.balances[playerID] = balance
	if debit > 0 {
		m.append(playerID, -debit, model.TxKindStake, game)
	}
	if credit > 0 {
		m.append(playerID, credit, model.TxKindPayout, game)
	}
	return balance, nil
}

func (m *MemorySettler) Deposit(ctx context.Context, playerID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[playerID]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	balance += amount
	m.balances[playerID] = balance
	m.append(playerID, amount, model.TxKindDeposit, "")
	return balance, nil
}

func (m *MemorySettler) Balance(ctx context.Context, playerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[playerID]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	return balance, nil
}

// Ledger returns a copy of all recorded transactions, oldest first.
func (m *MemorySettler) Ledger() []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transaction, len(m.ledger))
	copy(out, m.ledger)
	return out
}

func (m *MemorySettler) append(playerID, amount int64, kind, game string) {
	m.nextTxID++
	m.ledger = append(m.ledger, model.Transaction{
		ID:        m.nextTxID,
		PlayerID:  playerID,
		Amount:    amount,
		Kind:      kind,
		Game:      game,
		CreatedAt: time.Now(),
	})
}
