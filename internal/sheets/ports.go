package sheets

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound mirror adapters.
type (
	// TransactionWriter appends a single ledger entry to the mirror.
	TransactionWriter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// SnapshotWriter records an account's aggregate totals.
	SnapshotWriter interface {
		AppendSnapshot(ctx context.Context, userID string, state core.AggregateState) (rowRef string, err error)
	}

	// LedgerMirror combines both mirror surfaces.
	LedgerMirror interface {
		TransactionWriter
		SnapshotWriter
	}
)
