package flux

import (
	"context"
	"sync"
	"time"
)

// PaymentCoalescer closes the concurrent double-pay window of the plain
// invoice cache: it tracks in-flight payments per invoice id and caches
// completed proofs for a TTL, so concurrent callers hitting the same
// invoice invoke the payer at most once. The http client enables it via
// WithPaymentCoalescing.
type PaymentCoalescer struct {
	mu       sync.Mutex
	proofs   map[string]*PaymentProof
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewPaymentCoalescer creates a coalescer whose completed proofs stay
// visible for ttl. The TTL only bounds memory: the invoice cache remains
// the authoritative proof store.
func NewPaymentCoalescer(ttl time.Duration) *PaymentCoalescer {
	return &PaymentCoalescer{
		proofs:   make(map[string]*PaymentProof),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// CoalesceStatus is the result of checking the coalescer.
type CoalesceStatus int

const (
	// CoalesceNotFound means no proof and no in-flight payment; the
	// caller should proceed and is now marked in-flight.
	CoalesceNotFound CoalesceStatus = iota
	// CoalesceCached means a completed proof was found.
	CoalesceCached
	// CoalesceInFlight means another caller is paying this invoice.
	CoalesceInFlight
)

// CheckAndMark resolves an invoice against the coalescer in one atomic
// step. A live proof comes back as CoalesceCached; a payment already
// underway comes back as CoalesceInFlight with its wait channel. With
// neither present the invoice is marked in-flight under the returned done
// channel and the caller owns the payment.
func (c *PaymentCoalescer) CheckAndMark(invoiceID string) (CoalesceStatus, *PaymentProof, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[invoiceID]; exists {
		if time.Now().Before(expiry) {
			if proof, ok := c.proofs[invoiceID]; ok {
				return CoalesceCached, proof, nil
			}
		}
		delete(c.proofs, invoiceID)
		delete(c.expiry, invoiceID)
	}

	if done, exists := c.inFlight[invoiceID]; exists {
		return CoalesceInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[invoiceID] = done
	return CoalesceNotFound, nil, done
}

// WaitForProof blocks until the in-flight payment behind done settles or
// ctx ends. A nil proof with a nil error means the payment failed and the
// waiter should take its own turn at paying.
func (c *PaymentCoalescer) WaitForProof(ctx context.Context, invoiceID string, done chan struct{}) (*PaymentProof, error) {
	select {
	case <-done:
		return c.get(invoiceID), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *PaymentCoalescer) get(invoiceID string) *PaymentProof {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[invoiceID]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.proofs, invoiceID)
		delete(c.expiry, invoiceID)
		return nil
	}
	return c.proofs[invoiceID]
}

// Complete records a successful payment, caches the proof and releases
// any waiting callers.
func (c *PaymentCoalescer) Complete(invoiceID string, proof *PaymentProof, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.proofs[invoiceID] = proof
	c.expiry[invoiceID] = time.Now().Add(c.ttl)
	delete(c.inFlight, invoiceID)
	close(done)

	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a proof, releasing
// waiters so they can attempt the payment themselves.
func (c *PaymentCoalescer) Fail(invoiceID string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, invoiceID)
	close(done)
}

// cleanupExpiredLocked drops proofs past their TTL; caller holds c.mu.
func (c *PaymentCoalescer) cleanupExpiredLocked() {
	now := time.Now()
	for invoiceID, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.proofs, invoiceID)
			delete(c.expiry, invoiceID)
		}
	}
}
