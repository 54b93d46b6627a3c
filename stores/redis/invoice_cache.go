package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	flux "github.com/fluxprotocol/flux-go"
)

const (
	invoiceKeyPrefix     = "flux:invoice:"
	idempotencyKeyPrefix = "flux:idem:"
)

// defaultInvoiceTTL bounds how long a paid-invoice proof is replayable.
const defaultInvoiceTTL = 24 * time.Hour

// InvoiceCache is a Redis-backed paid-invoice cache. Proofs are stored as
// JSON under the invoice id, with a secondary index by idempotency key.
type InvoiceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// InvoiceCacheOption configures the cache.
type InvoiceCacheOption func(*InvoiceCache)

// WithTTL overrides how long cached proofs are kept.
func WithTTL(ttl time.Duration) InvoiceCacheOption {
	return func(c *InvoiceCache) { c.ttl = ttl }
}

// NewInvoiceCache creates an invoice cache on an existing Redis client.
func NewInvoiceCache(client *redis.Client, opts ...InvoiceCacheOption) *InvoiceCache {
	c := &InvoiceCache{client: client, ttl: defaultInvoiceTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPaid returns the proof stored for an invoice id, or nil when the
// invoice has not been paid.
func (c *InvoiceCache) GetPaid(ctx context.Context, invoiceID string) (*flux.PaymentProof, error) {
	return c.get(ctx, invoiceKeyPrefix+invoiceID)
}

// SetPaid stores a proof under the invoice id. A later payment of the
// same invoice overwrites the earlier proof. An empty idempotency key is
// not indexed.
func (c *InvoiceCache) SetPaid(ctx context.Context, invoiceID string, proof flux.PaymentProof, idempotencyKey string) error {
	data, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("encoding proof: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, invoiceKeyPrefix+invoiceID, data, c.ttl)
	if idempotencyKey != "" {
		pipe.Set(ctx, idempotencyKeyPrefix+idempotencyKey, data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set paid: %w", err)
	}
	return nil
}

// GetByIdempotencyKey returns the proof indexed by an idempotency key, or
// nil when no payment with that key was recorded.
func (c *InvoiceCache) GetByIdempotencyKey(ctx context.Context, key string) (*flux.PaymentProof, error) {
	if key == "" {
		return nil, nil
	}
	return c.get(ctx, idempotencyKeyPrefix+key)
}

func (c *InvoiceCache) get(ctx context.Context, key string) (*flux.PaymentProof, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var proof flux.PaymentProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("corrupt cached proof: %w", err)
	}
	return &proof, nil
}

var _ flux.InvoiceCache = (*InvoiceCache)(nil)
