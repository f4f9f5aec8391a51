// Package ledger gates every billable call behind an atomic credit debit.
// A debit either fully succeeds (balance decremented, usage recorded at
// commit) or fully fails; the balance can never go negative and two
// concurrent calls cannot spend the same credits twice.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avrebarra/lumora/internal/metrics"
	"github.com/avrebarra/lumora/internal/store"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Feature is a billable feature class. Costs are looked up, never
// computed, so billing stays deterministic and auditable.
type Feature string

const (
	FeatureChat  Feature = "chat"
	FeatureImage Feature = "image"
	FeatureVideo Feature = "video"
	FeatureAudio Feature = "audio"
)

var costTable = map[Feature]int64{
	FeatureChat:  2,
	FeatureImage: 5,
	FeatureVideo: 20,
	FeatureAudio: 10,
}

// Cost returns the fixed credit cost of a feature class.
func Cost(feature Feature) (int64, bool) {
	cost, ok := costTable[feature]
	return cost, ok
}

// Ticket is an authorized (already-debited) reservation awaiting Commit or
// Release.
type Ticket struct {
	ID        string
	AccountID string
	Feature   Feature
	Cost      int64
	IssuedAt  time.Time
}

// AccountStore is the slice of persistence the gate needs.
type AccountStore interface {
	Debit(ctx context.Context, id string, cost int64) error
	Refund(ctx context.Context, id string, cost int64) error
	AppendUsage(ctx context.Context, record store.UsageRecord) (*store.UsageRecord, error)
}

// Gate admits billable work. The debit happens at Authorize so admission
// and reservation are one atomic store operation; Commit records usage,
// Release refunds failed work.
type Gate struct {
	accounts AccountStore
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]Ticket
}

// NewGate creates a ledger gate. Metrics may be nil.
func NewGate(accounts AccountStore, m *metrics.Metrics, logger zerolog.Logger) *Gate {
	return &Gate{
		accounts: accounts,
		metrics:  m,
		logger:   logger,
		pending:  make(map[string]Ticket),
	}
}

// Authorize checks the account and atomically debits the feature's cost.
// Suspension is reported before insufficient balance.
func (g *Gate) Authorize(ctx context.Context, accountID string, feature Feature) (Ticket, error) {
	cost, ok := Cost(feature)
	if !ok {
		return Ticket{}, llm.Errorf(llm.KindConfigurationError, "unknown feature class: %s", feature)
	}

	if err := g.accounts.Debit(ctx, accountID, cost); err != nil {
		if g.metrics != nil {
			g.metrics.DebitsTotal.WithLabelValues(string(feature), "denied").Inc()
		}
		switch {
		case errors.Is(err, store.ErrAccountSuspended):
			return Ticket{}, llm.NewError(llm.KindAccountSuspended, "account is suspended")
		case errors.Is(err, store.ErrInsufficientFunds):
			return Ticket{}, llm.NewError(llm.KindInsufficientCredit, "insufficient credits")
		case errors.Is(err, store.ErrAccountNotFound):
			return Ticket{}, llm.NewError(llm.KindAuthError, "unknown account")
		default:
			return Ticket{}, llm.Errorf(llm.KindStoreError, "debit failed: %v", err)
		}
	}

	if g.metrics != nil {
		g.metrics.DebitsTotal.WithLabelValues(string(feature), "success").Inc()
	}

	ticket := Ticket{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Feature:   feature,
		Cost:      cost,
		IssuedAt:  time.Now(),
	}

	g.mu.Lock()
	g.pending[ticket.ID] = ticket
	g.mu.Unlock()

	g.logger.Debug().
		Str("account_id", accountID).
		Str("feature", string(feature)).
		Int64("cost", cost).
		Msg("Credit authorized")
	return ticket, nil
}

// Commit finalizes a ticket by appending an immutable usage record.
// Committing an unknown or already-settled ticket is a no-op.
func (g *Gate) Commit(ctx context.Context, ticket Ticket, reason string, metadata map[string]interface{}) (*store.UsageRecord, error) {
	if !g.take(ticket.ID) {
		return nil, nil
	}

	record, err := g.accounts.AppendUsage(ctx, store.UsageRecord{
		AccountID: ticket.AccountID,
		Cost:      ticket.Cost,
		Reason:    reason,
		Metadata:  metadata,
	})
	if err != nil {
		// The debit stands; put the ticket back so the reaper can refund
		// it if the caller never retries.
		g.mu.Lock()
		g.pending[ticket.ID] = ticket
		g.mu.Unlock()
		return nil, llm.Errorf(llm.KindStoreError, "failed to record usage: %v", err)
	}

	g.logger.Debug().
		Str("account_id", ticket.AccountID).
		Str("reason", reason).
		Int64("cost", ticket.Cost).
		Msg("Credit committed")
	return record, nil
}

// Release refunds a ticket whose work failed. Releasing an unknown or
// already-settled ticket is a no-op.
func (g *Gate) Release(ctx context.Context, ticket Ticket) error {
	if !g.take(ticket.ID) {
		return nil
	}

	if err := g.accounts.Refund(ctx, ticket.AccountID, ticket.Cost); err != nil {
		return llm.Errorf(llm.KindStoreError, "refund failed: %v", err)
	}

	if g.metrics != nil {
		g.metrics.ReleasesTotal.Inc()
	}

	g.logger.Debug().
		Str("account_id", ticket.AccountID).
		Int64("cost", ticket.Cost).
		Msg("Credit released")
	return nil
}

// take removes a ticket from the pending set, reporting whether it was
// still pending. This is what makes Commit/Release idempotent per ticket.
func (g *Gate) take(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[id]; !ok {
		return false
	}
	delete(g.pending, id)
	return true
}

// ReleaseExpired refunds tickets older than ttl that were never committed
// or released. The pending set lives in memory, so this covers callers
// that abandon a ticket within this process; tickets held at process exit
// are gone with it. Returns the number of tickets released.
func (g *Gate) ReleaseExpired(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	g.mu.Lock()
	var expired []Ticket
	for _, ticket := range g.pending {
		if ticket.IssuedAt.Before(cutoff) {
			expired = append(expired, ticket)
		}
	}
	g.mu.Unlock()

	released := 0
	for _, ticket := range expired {
		if err := g.Release(ctx, ticket); err != nil {
			g.logger.Error().Err(err).Str("ticket_id", ticket.ID).Msg("Failed to release expired ticket")
			continue
		}
		released++
	}
	if released > 0 {
		g.logger.Info().Int("count", released).Msg("Released expired credit tickets")
	}
	return released
}
