// Package memory provides an in-memory ledger mirror, used in tests and as
// a fallback when no spreadsheet is configured.
package memory

import (
	"context"
	"strconv"
	"sync"

	"tally/internal/core"
	ports "tally/internal/sheets"
)

type Mirror struct {
	mu           sync.Mutex
	Transactions []core.Transaction
	Snapshots    []Snapshot
}

type Snapshot struct {
	UserID string
	State  core.AggregateState
}

var _ ports.LedgerMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

func (m *Mirror) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transactions = append(m.Transactions, tx)
	return "mem:tx:" + strconv.Itoa(len(m.Transactions)), nil
}

func (m *Mirror) AppendSnapshot(_ context.Context, userID string, state core.AggregateState) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots = append(m.Snapshots, Snapshot{UserID: userID, State: state})
	return "mem:snap:" + strconv.Itoa(len(m.Snapshots)), nil
}
