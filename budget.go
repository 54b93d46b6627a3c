package flux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStore persists cumulative spend per (chain, asset, day bucket).
//
// RecordSpend always applies to the current bucket and must be serialized
// against concurrent GetSpent/RecordSpend calls for the same key so that
// no increment is ever lost. The default MemoryBudgetStore is non-durable
// and process-local; production deployments should inject a durable
// implementation such as stores/redis.
type BudgetStore interface {
	// GetSpent returns the cumulative amount spent for a chain/asset in
	// the given day bucket (YYYY-MM-DD). Zero if nothing was recorded.
	GetSpent(ctx context.Context, chain ChainID, asset, day string) (decimal.Decimal, error)

	// RecordSpend adds amount to the current day bucket.
	RecordSpend(ctx context.Context, chain ChainID, asset string, amount decimal.Decimal) error

	// Reset clears the current day bucket for a chain/asset.
	Reset(ctx context.Context, chain ChainID, asset string) error
}

// MemoryBudgetStore is an in-memory budget store for development and
// testing. Data is lost on process restart and not shared across processes.
type MemoryBudgetStore struct {
	mu    sync.Mutex
	spent map[string]decimal.Decimal

	now func() time.Time
}

// NewMemoryBudgetStore creates an empty in-memory budget store.
func NewMemoryBudgetStore() *MemoryBudgetStore {
	return &MemoryBudgetStore{
		spent: make(map[string]decimal.Decimal),
		now:   time.Now,
	}
}

func budgetKey(chain ChainID, asset, day string) string {
	return fmt.Sprintf("%s:%s:%s", chain, asset, day)
}

// GetSpent returns the cumulative spend for the given bucket.
func (s *MemoryBudgetStore) GetSpent(_ context.Context, chain ChainID, asset, day string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent[budgetKey(chain, asset, day)], nil
}

// RecordSpend adds amount to the current UTC day bucket.
func (s *MemoryBudgetStore) RecordSpend(_ context.Context, chain ChainID, asset string, amount decimal.Decimal) error {
	day := s.now().UTC().Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey(chain, asset, day)
	s.spent[key] = s.spent[key].Add(amount)
	return nil
}

// Reset clears the current UTC day bucket.
func (s *MemoryBudgetStore) Reset(_ context.Context, chain ChainID, asset string) error {
	day := s.now().UTC().Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spent, budgetKey(chain, asset, day))
	return nil
}

var _ BudgetStore = (*MemoryBudgetStore)(nil)

// BudgetTracker enforces per-request and daily spending ceilings against
// a BudgetStore ledger. Check has no side effects; Record is called only
// after a payment actually succeeded.
type BudgetTracker struct {
	maxPerRequest *decimal.Decimal
	maxPerDay     *decimal.Decimal
	resetHour     int
	store         BudgetStore

	now func() time.Time
}

// NewBudgetTracker creates a tracker from a config and a ledger store.
// Ceilings must parse as decimals; the reset hour must be 0-23.
func NewBudgetTracker(config BudgetConfig, store BudgetStore) (*BudgetTracker, error) {
	t := &BudgetTracker{
		resetHour: config.DailyResetHour,
		store:     store,
		now:       time.Now,
	}
	if t.resetHour < 0 || t.resetHour > 23 {
		return nil, fmt.Errorf("dailyResetHour must be 0-23, got %d", config.DailyResetHour)
	}
	if config.MaxPerRequest != "" {
		d, err := decimal.NewFromString(config.MaxPerRequest)
		if err != nil {
			return nil, fmt.Errorf("invalid maxPerRequest %q: %w", config.MaxPerRequest, err)
		}
		t.maxPerRequest = &d
	}
	if config.MaxPerDay != "" {
		d, err := decimal.NewFromString(config.MaxPerDay)
		if err != nil {
			return nil, fmt.Errorf("invalid maxPerDay %q: %w", config.MaxPerDay, err)
		}
		t.maxPerDay = &d
	}
	return t, nil
}

// Check validates a proposed spend against both ceilings without touching
// the ledger. Both bounds are closed: spending exactly up to a limit is
// allowed. A zero amount always passes.
func (t *BudgetTracker) Check(ctx context.Context, chain ChainID, asset string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	if t.maxPerRequest != nil && amount.GreaterThan(*t.maxPerRequest) {
		return &BudgetExceededError{
			Limit:   LimitPerRequest,
			Chain:   chain,
			Asset:   asset,
			Amount:  amount,
			Ceiling: *t.maxPerRequest,
		}
	}

	if t.maxPerDay != nil {
		day := t.dayKey()
		spent, err := t.store.GetSpent(ctx, chain, asset, day)
		if err != nil {
			return fmt.Errorf("budget store: %w", err)
		}
		if spent.Add(amount).GreaterThan(*t.maxPerDay) {
			return &BudgetExceededError{
				Limit:   LimitPerDay,
				Chain:   chain,
				Asset:   asset,
				Amount:  amount,
				Spent:   spent,
				Ceiling: *t.maxPerDay,
			}
		}
	}

	return nil
}

// Record adds a completed spend to the ledger. The store applies it to the
// current bucket, independent of which bucket Check consulted.
func (t *BudgetTracker) Record(ctx context.Context, chain ChainID, asset string, amount decimal.Decimal) error {
	return t.store.RecordSpend(ctx, chain, asset, amount)
}

// Remaining returns the remaining daily budget for a chain/asset, never
// negative. The second return is false when no daily ceiling is configured.
func (t *BudgetTracker) Remaining(ctx context.Context, chain ChainID, asset string) (decimal.Decimal, bool, error) {
	if t.maxPerDay == nil {
		return decimal.Zero, false, nil
	}
	spent, err := t.store.GetSpent(ctx, chain, asset, t.dayKey())
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("budget store: %w", err)
	}
	remaining := t.maxPerDay.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, true, nil
}

// dayKey computes the active bucket. A clock reading before the reset hour
// attributes spend to the previous calendar day.
func (t *BudgetTracker) dayKey() string {
	now := t.now().UTC()
	if now.Hour() < t.resetHour {
		now = now.AddDate(0, 0, -1)
	}
	return now.Format("2006-01-02")
}
