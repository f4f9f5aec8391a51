package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the credit account store. The ledger gate maps these
// onto the classified taxonomy; nothing below this layer interprets them.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountSuspended = errors.New("account suspended")
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// CreditAccount is a user's credit balance.
type CreditAccount struct {
	ID        string
	Balance   int64
	Suspended bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsageRecord is the immutable side effect of a successful debit.
type UsageRecord struct {
	ID        string
	AccountID string
	Cost      int64
	Reason    string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// CreateAccount inserts a new account with an opening balance.
func (s *Store) CreateAccount(ctx context.Context, id string, balance int64) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_accounts (id, balance, suspended, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		id, balance, now, now)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount loads one account.
func (s *Store) GetAccount(ctx context.Context, id string) (*CreditAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, balance, suspended, created_at, updated_at FROM credit_accounts WHERE id = ?`, id)

	var acc CreditAccount
	var suspended int
	var createdAt, updatedAt int64
	if err := row.Scan(&acc.ID, &acc.Balance, &suspended, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	acc.Suspended = suspended != 0
	acc.CreatedAt = time.UnixMilli(createdAt)
	acc.UpdatedAt = time.UnixMilli(updatedAt)
	return &acc, nil
}

// SetSuspended flips an account's suspension flag.
func (s *Store) SetSuspended(ctx context.Context, id string, suspended bool) error {
	flag := 0
	if suspended {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE credit_accounts SET suspended = ?, updated_at = ? WHERE id = ?`,
		flag, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update suspension: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Debit atomically decrements an account's balance by cost. The single
// conditional UPDATE is the mutual-exclusion discipline: two concurrent
// debits against one cost's worth of balance cannot both match the
// balance >= cost predicate.
func (s *Store) Debit(ctx context.Context, id string, cost int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credit_accounts SET balance = balance - ?, updated_at = ?
		 WHERE id = ? AND suspended = 0 AND balance >= ?`,
		cost, time.Now().UnixMilli(), id, cost)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read debit result: %w", err)
	}
	if n == 1 {
		return nil
	}

	// The conditional update matched nothing; look up why.
	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acc.Suspended {
		return ErrAccountSuspended
	}
	return ErrInsufficientFunds
}

// Refund returns a previously debited cost to the account.
func (s *Store) Refund(ctx context.Context, id string, cost int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credit_accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		cost, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to refund account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendUsage inserts an immutable usage record. Records are never
// updated or deleted here; retention is an external policy.
func (s *Store) AppendUsage(ctx context.Context, record UsageRecord) (*UsageRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now()

	metadata := "{}"
	if record.Metadata != nil {
		raw, err := json.Marshal(record.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal usage metadata: %w", err)
		}
		metadata = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, account_id, cost, reason, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.AccountID, record.Cost, record.Reason, metadata, record.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to append usage record: %w", err)
	}
	return &record, nil
}

// ListUsage returns an account's usage records, newest first.
func (s *Store) ListUsage(ctx context.Context, accountID string) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, cost, reason, metadata, created_at FROM usage_records
		 WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var metadata string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Cost, &rec.Reason, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		if metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &rec.Metadata)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}
