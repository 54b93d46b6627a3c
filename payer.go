package flux

import "context"

// Payer executes payments for canonical payment requests.
//
// Implementations are chain-specific (see the payers subpackages) and are
// injected into the http client. Pay must return a PaymentError (or wrap
// one) on failure; the client never retries a failed payment.
type Payer interface {
	// Supports reports whether this payer can fulfill the request.
	Supports(request PaymentRequest) bool

	// GetAddress returns the wallet address for a chain.
	GetAddress(ctx context.Context, chain ChainID) (string, error)

	// Pay executes the payment and returns proof of it.
	Pay(ctx context.Context, request PaymentRequest) (PaymentProof, error)

	// GetBalance returns the balance for an asset in smallest units,
	// as a decimal string.
	GetBalance(ctx context.Context, chain ChainID, asset string) (string, error)
}

// Signer signs raw transaction payloads. Payer implementations compose a
// Signer so key storage (software key, KMS, hardware) stays swappable.
type Signer interface {
	GetAddress(ctx context.Context, chain ChainID) (string, error)
	Sign(ctx context.Context, payload []byte, chain ChainID) ([]byte, error)
}

// ChainSet provides the default Supports behavior: membership of the
// request's chain in a fixed list, with wildcard patterns allowed.
// Payers embed or hold one instead of reimplementing the check.
type ChainSet []ChainID

// Supports reports whether the request's chain matches any entry.
func (s ChainSet) Supports(request PaymentRequest) bool {
	return s.Contains(request.Chain)
}

// Contains reports whether chain matches any entry in the set.
func (s ChainSet) Contains(chain ChainID) bool {
	for _, c := range s {
		if chain.Match(c) {
			return true
		}
	}
	return false
}
