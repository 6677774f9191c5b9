// README: In-memory ledger that applies balance deltas through the memory user directory.
package settlement

import (
	"context"
	"sync"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type MemoryLedger struct {
	mu    sync.Mutex
	txns  []Transaction
	users *user.MemoryDirectory
}

func NewMemoryLedger(users *user.MemoryDirectory) *MemoryLedger {
	return &MemoryLedger{users: users}
}

func (m *MemoryLedger) Apply(ctx context.Context, plan Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.users.ApplyAll(ctx, plan.Deltas); err != nil {
		return err
	}
	m.txns = append(m.txns, plan.Transactions...)
	return nil
}

func (m *MemoryLedger) Debit(ctx context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.users.Get(ctx, tx.UserID)
	if err != nil {
		return err
	}
	if u.Balance.Amount < tx.Amount.Amount {
		return ErrInsufficientBalance
	}
	if err := m.users.UpdateBalance(ctx, user.BalanceDelta{UserID: tx.UserID, Balance: tx.Amount.Neg()}); err != nil {
		return err
	}
	m.txns = append(m.txns, tx)
	return nil
}

func (m *MemoryLedger) ListByUser(_ context.Context, userID types.ID) ([]Transaction, error) {
	return m.filter(func(t Transaction) bool { return t.UserID == userID }), nil
}

func (m *MemoryLedger) ListByJob(_ context.Context, jobID types.ID) ([]Transaction, error) {
	return m.filter(func(t Transaction) bool { return t.JobID != nil && *t.JobID == jobID }), nil
}

func (m *MemoryLedger) filter(keep func(Transaction) bool) []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, t := range m.txns {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
