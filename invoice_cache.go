package flux

import (
	"context"
	"sync"
)

// InvoiceCache deduplicates payments: it maps invoice identifiers and
// idempotency keys to previously produced proofs so the same invoice is
// never paid twice by a well-behaved client.
//
// The default MemoryInvoiceCache is process-local and accepts a narrow
// window where two concurrent callers both miss the cache and both pay
// before either stores; clients that need the payer invoked at most once
// per invoice enable the PaymentCoalescer on top of the cache.
type InvoiceCache interface {
	// GetPaid returns the stored proof for an invoice, or nil if the
	// invoice has not been paid.
	GetPaid(ctx context.Context, invoiceID string) (*PaymentProof, error)

	// SetPaid stores a proof under the invoice id, overwriting any prior
	// proof (last write wins). A non-empty idempotencyKey additionally
	// indexes the proof; an empty key is treated as "no key".
	SetPaid(ctx context.Context, invoiceID string, proof PaymentProof, idempotencyKey string) error

	// GetByIdempotencyKey returns the proof indexed under an idempotency
	// key, or nil if none.
	GetByIdempotencyKey(ctx context.Context, key string) (*PaymentProof, error)
}

// MemoryInvoiceCache is an in-memory invoice cache for development and
// single-process deployments. Data is lost on restart and not shared
// across processes; distributed deployments should inject stores/redis.
type MemoryInvoiceCache struct {
	mu        sync.RWMutex
	byInvoice map[string]PaymentProof
	byKey     map[string]PaymentProof
}

// NewMemoryInvoiceCache creates an empty in-memory invoice cache.
func NewMemoryInvoiceCache() *MemoryInvoiceCache {
	return &MemoryInvoiceCache{
		byInvoice: make(map[string]PaymentProof),
		byKey:     make(map[string]PaymentProof),
	}
}

// GetPaid returns the stored proof for an invoice, or nil.
func (c *MemoryInvoiceCache) GetPaid(_ context.Context, invoiceID string) (*PaymentProof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if proof, ok := c.byInvoice[invoiceID]; ok {
		return &proof, nil
	}
	return nil, nil
}

// SetPaid stores a proof under the invoice id and, when a key is supplied,
// under the idempotency key as well.
func (c *MemoryInvoiceCache) SetPaid(_ context.Context, invoiceID string, proof PaymentProof, idempotencyKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byInvoice[invoiceID] = proof
	if idempotencyKey != "" {
		c.byKey[idempotencyKey] = proof
	}
	return nil
}

// GetByIdempotencyKey returns the proof indexed under key, or nil.
func (c *MemoryInvoiceCache) GetByIdempotencyKey(_ context.Context, key string) (*PaymentProof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if proof, ok := c.byKey[key]; ok {
		return &proof, nil
	}
	return nil, nil
}

// Clear removes all cached proofs.
func (c *MemoryInvoiceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byInvoice = make(map[string]PaymentProof)
	c.byKey = make(map[string]PaymentProof)
}

// Len returns the number of cached invoices.
func (c *MemoryInvoiceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byInvoice)
}

var _ InvoiceCache = (*MemoryInvoiceCache)(nil)
