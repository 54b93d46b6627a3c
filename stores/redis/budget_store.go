package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	flux "github.com/fluxprotocol/flux-go"
)

// budgetKeyPrefix namespaces ledger keys in a shared Redis.
const budgetKeyPrefix = "flux:budget:"

// budgetKeyTTL keeps day buckets around long enough for any reset-hour
// offset to still read yesterday's bucket, then lets them expire.
const budgetKeyTTL = 48 * time.Hour

// BudgetStore is a Redis-backed spend ledger. Amounts are stored as
// decimal strings so that values beyond float64 precision survive intact,
// which rules out Redis INCRBYFLOAT; increments instead use an optimistic
// WATCH/MULTI loop.
type BudgetStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewBudgetStore creates a budget ledger on an existing Redis client.
func NewBudgetStore(client *redis.Client) *BudgetStore {
	return &BudgetStore{client: client, now: time.Now}
}

func budgetKey(chain flux.ChainID, asset, day string) string {
	return fmt.Sprintf("%s%s:%s:%s", budgetKeyPrefix, chain, asset, day)
}

// GetSpent returns the cumulative spend for the given day bucket.
func (s *BudgetStore) GetSpent(ctx context.Context, chain flux.ChainID, asset, day string) (decimal.Decimal, error) {
	val, err := s.client.Get(ctx, budgetKey(chain, asset, day)).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis get: %w", err)
	}
	spent, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt ledger value %q: %w", val, err)
	}
	return spent, nil
}

// RecordSpend adds amount to the current UTC day bucket. Concurrent
// increments for the same key retry until the transaction applies
// cleanly, so no spend is lost.
func (s *BudgetStore) RecordSpend(ctx context.Context, chain flux.ChainID, asset string, amount decimal.Decimal) error {
	day := s.now().UTC().Format("2006-01-02")
	key := budgetKey(chain, asset, day)

	for {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current := decimal.Zero
			val, err := tx.Get(ctx, key).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				current, err = decimal.NewFromString(val)
				if err != nil {
					return fmt.Errorf("corrupt ledger value %q: %w", val, err)
				}
			}

			updated := current.Add(amount).String()
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, budgetKeyTTL)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis record spend: %w", err)
		}
		return nil
	}
}

// Reset clears the current UTC day bucket.
func (s *BudgetStore) Reset(ctx context.Context, chain flux.ChainID, asset string) error {
	day := s.now().UTC().Format("2006-01-02")
	if err := s.client.Del(ctx, budgetKey(chain, asset, day)).Err(); err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}

var _ flux.BudgetStore = (*BudgetStore)(nil)
