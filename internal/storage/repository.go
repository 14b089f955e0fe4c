package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/core"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const updateAttempts = 3

// sqlTimeLayout is RFC 3339 with fixed-width nanoseconds, so the TEXT
// encoding sorts and compares chronologically. RFC3339Nano trims trailing
// zeros and breaks lexical ordering within a second.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL keeps readers unblocked during writes; the busy timeout covers
	// lock contention from other processes sharing the file (the worker
	// and verify binaries).
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection serializes in-process writers, so concurrent
	// UpdateAccount calls queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Filter narrows a transaction listing. Zero values mean "no constraint".
type Filter struct {
	Type  core.TransactionType
	From  time.Time
	To    time.Time
	Query string
	Limit int
}

// Change is the staged outcome of one account mutation: the new aggregate
// plus exactly one transaction write. Everything in it is committed together
// or not at all.
type Change struct {
	Aggregate core.AggregateState
	Insert    *core.Transaction
	Update    *core.Transaction
	Delete    string
}

// AccountView is the read side handed to an UpdateAccount closure.
type AccountView interface {
	Aggregate() core.AggregateState
	Transaction(ctx context.Context, id string) (*core.Transaction, error)
}

// AccountTx is the read view handed to an UpdateAccount closure. Reads go
// through the same sql transaction that later commits the change, so the
// closure always computes against a consistent snapshot.
type AccountTx struct {
	tx        *sql.Tx
	userID    string
	aggregate core.AggregateState
}

func (a *AccountTx) Aggregate() core.AggregateState {
	return a.aggregate
}

// Transaction looks up a transaction owned by the account.
func (a *AccountTx) Transaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := a.tx.QueryRowContext(ctx, selectTransaction+" WHERE id = ? AND user_id = ?", id, a.userID)
	return scanTransaction(row)
}

// UpdateAccount runs fn inside an atomic read-modify-write against the
// account's aggregate row, guarded by optimistic versioning. The closure
// must be free of side effects: on a version conflict or lock contention the
// whole body is re-run against a fresh snapshot, a bounded number of times.
// Any other error from fn aborts immediately with no retry and no state
// change.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, userID string, fn func(AccountView) (*Change, error)) error {
	for attempt := 1; attempt <= updateAttempts; attempt++ {
		committed, err := r.tryUpdateAccount(ctx, userID, fn)
		if err != nil && !isLocked(err) {
			return err
		}
		if err == nil && committed {
			return nil
		}

		slog.WarnContext(ctx, "Account update conflict, retrying",
			"user_id", userID,
			"attempt", attempt,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("update account %s after %d attempts: %w", userID, updateAttempts, ErrConflict)
}

// isLocked reports whether err is sqlite lock contention. Another writer
// committed between our snapshot and our write, so the update is retryable
// against fresh state, same as losing the version race.
func isLocked(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func (r *SQLiteRepository) tryUpdateAccount(ctx context.Context, userID string, fn func(AccountView) (*Change, error)) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	aggregate, version, err := readAggregate(ctx, tx, userID)
	if err != nil {
		return false, err
	}

	change, err := fn(&AccountTx{tx: tx, userID: userID, aggregate: aggregate})
	if err != nil {
		return false, err
	}
	if change == nil {
		return true, nil
	}

	if err := applyRecordChange(ctx, tx, userID, change); err != nil {
		return false, err
	}

	ok, err := writeAggregate(ctx, tx, userID, change.Aggregate, version)
	if err != nil {
		return false, err
	}
	if !ok {
		// Lost the version race; the deferred rollback undoes the record write.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit account update: %w", err)
	}
	return true, nil
}

func applyRecordChange(ctx context.Context, tx *sql.Tx, userID string, change *Change) error {
	switch {
	case change.Insert != nil:
		t := change.Insert
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, name, amount_cents, type, notes, date, is_settlement, related_transaction_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, userID, t.Name, t.Amount.Cents, string(t.Type), t.Notes,
			t.Date.UTC().Format(sqlTimeLayout), boolToInt(t.IsSettlement), nullable(t.RelatedTransactionID))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	case change.Update != nil:
		t := change.Update
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET name = ?, amount_cents = ?, type = ?, notes = ?, date = ?, is_settlement = ?, related_transaction_id = ?
			WHERE id = ? AND user_id = ?`,
			t.Name, t.Amount.Cents, string(t.Type), t.Notes,
			t.Date.UTC().Format(sqlTimeLayout), boolToInt(t.IsSettlement), nullable(t.RelatedTransactionID),
			t.ID, userID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update transaction %s: %w", t.ID, ErrNotFound)
		}
	case change.Delete != "":
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, change.Delete, userID)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete transaction %s: %w", change.Delete, ErrNotFound)
		}
	}
	return nil
}

// readAggregate returns the current aggregate and its version.
// A missing row reads as the explicit zero state with version 0.
func readAggregate(ctx context.Context, tx *sql.Tx, userID string) (core.AggregateState, int64, error) {
	var state core.AggregateState
	var version int64
	err := tx.QueryRowContext(ctx, `
		SELECT balance_cents, income_cents, expense_cents, payable_cents, receivable_cents, version
		FROM aggregates WHERE user_id = ?`, userID).
		Scan(&state.Balance.Cents, &state.TotalIncome.Cents, &state.TotalExpense.Cents,
			&state.TotalPayable.Cents, &state.TotalReceivable.Cents, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AggregateState{}, 0, nil
	}
	if err != nil {
		return core.AggregateState{}, 0, fmt.Errorf("read aggregate: %w", err)
	}
	return state, version, nil
}

// writeAggregate persists the new aggregate, succeeding only when the row
// still carries the version observed at read time.
func writeAggregate(ctx context.Context, tx *sql.Tx, userID string, state core.AggregateState, version int64) (bool, error) {
	if version == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO aggregates (user_id, balance_cents, income_cents, expense_cents, payable_cents, receivable_cents, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(user_id) DO NOTHING`,
			userID, state.Balance.Cents, state.TotalIncome.Cents, state.TotalExpense.Cents,
			state.TotalPayable.Cents, state.TotalReceivable.Cents, nowUTC())
		if err != nil {
			return false, fmt.Errorf("insert aggregate: %w", err)
		}
		n, _ := res.RowsAffected()
		return n == 1, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE aggregates
		SET balance_cents = ?, income_cents = ?, expense_cents = ?, payable_cents = ?, receivable_cents = ?,
		    version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		state.Balance.Cents, state.TotalIncome.Cents, state.TotalExpense.Cents,
		state.TotalPayable.Cents, state.TotalReceivable.Cents, nowUTC(),
		userID, version)
	if err != nil {
		return false, fmt.Errorf("update aggregate: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetAggregate returns the stored aggregate for the account. A user with no
// aggregate row reads as the zero state.
func (r *SQLiteRepository) GetAggregate(ctx context.Context, userID string) (core.AggregateState, error) {
	var state core.AggregateState
	err := r.db.QueryRowContext(ctx, `
		SELECT balance_cents, income_cents, expense_cents, payable_cents, receivable_cents
		FROM aggregates WHERE user_id = ?`, userID).
		Scan(&state.Balance.Cents, &state.TotalIncome.Cents, &state.TotalExpense.Cents,
			&state.TotalPayable.Cents, &state.TotalReceivable.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AggregateState{}, nil
	}
	if err != nil {
		return core.AggregateState{}, fmt.Errorf("get aggregate: %w", err)
	}
	return state, nil
}

// SetAggregate overwrites the stored aggregate unconditionally, bumping the
// version so concurrent optimistic updates notice. Used by the repair path.
func (r *SQLiteRepository) SetAggregate(ctx context.Context, userID string, state core.AggregateState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO aggregates (user_id, balance_cents, income_cents, expense_cents, payable_cents, receivable_cents, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance_cents = excluded.balance_cents,
			income_cents = excluded.income_cents,
			expense_cents = excluded.expense_cents,
			payable_cents = excluded.payable_cents,
			receivable_cents = excluded.receivable_cents,
			version = aggregates.version + 1,
			updated_at = excluded.updated_at`,
		userID, state.Balance.Cents, state.TotalIncome.Cents, state.TotalExpense.Cents,
		state.TotalPayable.Cents, state.TotalReceivable.Cents, nowUTC())
	if err != nil {
		return fmt.Errorf("set aggregate: %w", err)
	}
	return nil
}

// GetTransaction looks up a single transaction owned by the account.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTransaction+" WHERE id = ? AND user_id = ?", id, userID)
	return scanTransaction(row)
}

// ListTransactions returns the account's transactions matching the filter,
// newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f Filter) ([]core.Transaction, error) {
	query := selectTransaction + " WHERE user_id = ?"
	args := []any{userID}

	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if !f.From.IsZero() {
		query += " AND date >= ?"
		args = append(args, f.From.UTC().Format(sqlTimeLayout))
	}
	if !f.To.IsZero() {
		query += " AND date <= ?"
		args = append(args, f.To.UTC().Format(sqlTimeLayout))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		query += " AND (name LIKE ? OR notes LIKE ?)"
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	query += " ORDER BY date DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// AllTransactions returns the account's complete history, for recomputation.
func (r *SQLiteRepository) AllTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.ListTransactions(ctx, userID, Filter{})
}

// ListUserIDs returns every account that has transactions or an aggregate
// row, for the periodic verification sweep.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM aggregates
		UNION
		SELECT DISTINCT user_id FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return out, nil
}

const selectTransaction = `
	SELECT id, user_id, name, amount_cents, type, notes, date, is_settlement, related_transaction_id
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var t core.Transaction
	var typ, date string
	var isSettlement int
	var related sql.NullString

	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Amount.Cents, &typ, &t.Notes, &date, &isSettlement, &related)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Type = core.TransactionType(typ)
	t.IsSettlement = isSettlement != 0
	t.RelatedTransactionID = related.String
	t.Date, err = time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return nil, fmt.Errorf("parse transaction date %q: %w", date, err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nowUTC() string {
	return time.Now().UTC().Format(sqlTimeLayout)
}
