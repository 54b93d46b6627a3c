// Package flux implements the client side of the Flux payment protocol:
// automatic, idempotent, budget-limited payment of HTTP 402 payment demands.
//
// The root package holds the protocol data model, the budget tracker and the
// invoice cache. The http subpackage provides the auto-paying client; payers
// and durable store backends live in their own subpackages and are injected.
package flux

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChainID is a blockchain identifier in CAIP-2 format.
// Format: namespace:reference (e.g. "cardano:mainnet", "eip155:8453").
type ChainID string

// Parse splits the chain id into namespace and reference components.
func (c ChainID) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(c), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid chain id format: %s", c)
	}
	return parts[0], parts[1], nil
}

// Match checks if this chain matches a pattern (supports trailing wildcards).
// e.g. "eip155:8453" matches "eip155:*".
func (c ChainID) Match(pattern ChainID) bool {
	if c == pattern {
		return true
	}
	if strings.HasSuffix(string(pattern), ":*") {
		prefix := strings.TrimSuffix(string(pattern), "*")
		return strings.HasPrefix(string(c), prefix)
	}
	return false
}

// Protocol tags carried in a PaymentRequest.
const (
	ProtocolFlux = "flux"
	ProtocolX402 = "x402"
)

// Split modes. Inclusive splits are carved out of the main amount,
// additional splits are added on top of it.
const (
	SplitModeInclusive  = "inclusive"
	SplitModeAdditional = "additional"
)

// SplitOutput is a single output in a split payment configuration.
type SplitOutput struct {
	To          string `json:"to"`
	AmountUnits string `json:"amountUnits"`
	Role        string `json:"role,omitempty"`
	Asset       string `json:"asset,omitempty"`
}

// SplitConfig describes how a payment is split across multiple outputs.
// Outputs is never empty: an absent or empty splits list at the wire level
// normalizes to a nil *SplitConfig, not an empty config.
type SplitConfig struct {
	Mode    string        `json:"mode"`
	Outputs []SplitOutput `json:"outputs"`
}

// PaymentRequest is the canonical invoice parsed from a 402 response.
//
// All monetary amounts are decimal strings: blockchain amounts routinely
// exceed safe float precision, so no numeric type may carry them.
type PaymentRequest struct {
	Protocol       string          `json:"protocol"`
	InvoiceID      string          `json:"invoiceId,omitempty"`
	Chain          ChainID         `json:"chain"`
	Asset          string          `json:"asset"`
	AmountUnits    string          `json:"amountUnits"`
	Decimals       *int            `json:"decimals,omitempty"`
	PayTo          string          `json:"payTo"`
	TimeoutSeconds *int64          `json:"timeoutSeconds,omitempty"`
	Splits         *SplitConfig    `json:"splits,omitempty"`
	Partner        string          `json:"partner,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Proof kinds. Hash kinds carry a transaction hash, the signed-CBOR kind
// carries a pre-signed transaction payload.
const (
	ProofKindCardanoTxHash   = "cardano-txhash"
	ProofKindCardanoSignedTx = "cardano-signed-cbor"
	ProofKindEVMTxHash       = "evm-txhash"
)

// PaymentProof is the proof of payment sent back to the server on retry.
// For hash kinds only TxHash is populated; for the signed-CBOR kind only
// CBORHex is populated.
type PaymentProof struct {
	Kind    string `json:"kind"`
	TxHash  string `json:"txHash,omitempty"`
	CBORHex string `json:"cborHex,omitempty"`
}

// Value returns the wire value of the proof: the transaction hash for hash
// kinds, the signed payload for the signed-CBOR kind.
func (p PaymentProof) Value() string {
	if p.Kind == ProofKindCardanoSignedTx {
		return p.CBORHex
	}
	return p.TxHash
}

// Validate performs basic shape validation on a payment proof.
func (p PaymentProof) Validate() error {
	switch p.Kind {
	case ProofKindCardanoTxHash, ProofKindEVMTxHash:
		if p.TxHash == "" {
			return fmt.Errorf("proof kind %s requires txHash", p.Kind)
		}
		if p.CBORHex != "" {
			return fmt.Errorf("proof kind %s must not carry cborHex", p.Kind)
		}
	case ProofKindCardanoSignedTx:
		if p.CBORHex == "" {
			return fmt.Errorf("proof kind %s requires cborHex", p.Kind)
		}
	default:
		return fmt.Errorf("unknown proof kind: %s", p.Kind)
	}
	return nil
}

// PaymentStatus reports the server-side state of a submitted payment.
type PaymentStatus struct {
	InvoiceID string `json:"invoiceId"`
	Status    string `json:"status"`
	TxHash    string `json:"txHash,omitempty"`
	Error     string `json:"error,omitempty"`
	SettledAt string `json:"settledAt,omitempty"`
}

// BudgetConfig holds spending limits for the budget tracker.
// Ceilings are decimal strings in smallest units; an empty string means
// no limit of that kind. DailyResetHour is the UTC hour (0-23) at which
// the daily bucket rolls over.
type BudgetConfig struct {
	MaxPerRequest  string `json:"maxPerRequest,omitempty"`
	MaxPerDay      string `json:"maxPerDay,omitempty"`
	DailyResetHour int    `json:"dailyResetHour"`
}
