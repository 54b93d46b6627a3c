package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	flux "github.com/fluxprotocol/flux-go"
)

// Flux protocol header names.
const (
	HeaderInvoiceID      = "X-Invoice-Id"
	HeaderPayment        = "X-Payment"
	HeaderPartner        = "X-Partner"
	HeaderWalletAddress  = "X-Wallet-Address"
	HeaderChain          = "X-Chain"
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderRequestID      = "X-Request-Id"
)

// headerX402Marker distinguishes x402 402 responses from Flux ones.
const headerX402Marker = "Payment-Required"

// chainMapping maps short wire-level chain names to CAIP-2 chain ids.
// Names not in the table pass through unchanged so newer servers can
// introduce chains without breaking older clients.
var chainMapping = map[string]flux.ChainID{
	"cardano-mainnet": "cardano:mainnet",
	"cardano-preprod": "cardano:preprod",
	"base-mainnet":    "eip155:8453",
	"base-sepolia":    "eip155:84532",
}

// defaultAsset is assumed when an invoice omits its currency.
const defaultAsset = "ADA"

// CanonicalChainID maps a wire-level chain name to its CAIP-2 id.
// Unknown names are returned unchanged.
func CanonicalChainID(wireName string) flux.ChainID {
	if canonical, ok := chainMapping[wireName]; ok {
		return canonical
	}
	return flux.ChainID(wireName)
}

// IsPaymentRequired reports whether resp is a Flux protocol payment
// demand. All three conditions are required: 402 status, JSON content
// type, and absence of the x402 marker header. Anything else is not our
// protocol and must be passed through untouched.
func IsPaymentRequired(resp *http.Response) bool {
	if resp.StatusCode != http.StatusPaymentRequired {
		return false
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return false
	}
	if resp.Header.Get(headerX402Marker) != "" {
		return false
	}
	return true
}

// invoiceWire is the inbound 402 body shape.
type invoiceWire struct {
	InvoiceID string          `json:"invoiceId"`
	Amount    json.RawMessage `json:"amount"`
	Currency  string          `json:"currency"`
	Decimals  *int            `json:"decimals"`
	PayTo     string          `json:"payTo"`
	Chain     string          `json:"chain"`
	ExpiresAt string          `json:"expiresAt"`
	Partner   string          `json:"partner"`
	SplitMode string          `json:"splitMode"`
	Splits    []splitWire     `json:"splits"`
}

type splitWire struct {
	To       string          `json:"to"`
	Amount   json.RawMessage `json:"amount"`
	Role     string          `json:"role"`
	Currency string          `json:"currency"`
}

// ParseInvoice normalizes a raw Flux invoice payload into a canonical
// PaymentRequest: chain names are mapped to CAIP-2, the amount is coerced
// to a decimal string whether the wire sent a number or a string, splits
// are normalized, and the absolute expiry becomes a relative timeout.
// The raw payload is retained for diagnostics. Only malformed JSON is an
// error; missing or odd fields are tolerated.
func ParseInvoice(data []byte) (flux.PaymentRequest, error) {
	var wire invoiceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return flux.PaymentRequest{}, err
	}

	request := flux.PaymentRequest{
		Protocol:       flux.ProtocolFlux,
		InvoiceID:      wire.InvoiceID,
		Chain:          CanonicalChainID(wire.Chain),
		Asset:          wire.Currency,
		AmountUnits:    coerceAmount(wire.Amount),
		Decimals:       wire.Decimals,
		PayTo:          wire.PayTo,
		TimeoutSeconds: timeoutFromExpiry(wire.ExpiresAt, time.Now()),
		Partner:        wire.Partner,
		Raw:            json.RawMessage(data),
	}
	if request.Asset == "" {
		request.Asset = defaultAsset
	}

	if len(wire.Splits) > 0 {
		mode := wire.SplitMode
		if mode == "" {
			mode = flux.SplitModeAdditional
		}
		splits := &flux.SplitConfig{Mode: mode}
		for _, s := range wire.Splits {
			splits.Outputs = append(splits.Outputs, flux.SplitOutput{
				To:          s.To,
				AmountUnits: coerceAmount(s.Amount),
				Role:        s.Role,
				Asset:       s.Currency,
			})
		}
		request.Splits = splits
	}

	return request, nil
}

// coerceAmount converts a wire amount (JSON number or string) into a
// decimal string. A missing amount becomes "0"; a value that does not
// parse as a decimal is carried through verbatim rather than rejected.
func coerceAmount(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "0"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Not a JSON string; take the number literal.
		s = string(raw)
	}

	if d, err := decimal.NewFromString(s); err == nil {
		return d.String()
	}
	return s
}

// timeoutFromExpiry converts an absolute ISO-8601 expiry into seconds
// from now, floored at zero. Expiry is advisory: a missing or unparsable
// timestamp yields nil, never an error.
func timeoutFromExpiry(expiresAt string, now time.Time) *int64 {
	if expiresAt == "" {
		return nil
	}
	expires, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil
	}
	seconds := int64(expires.Sub(now).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}

// applyPaymentHeaders sets the Flux payment headers on a retry request.
// The payment value is the transaction hash for hash-kind proofs or the
// signed payload for signed-payload proofs.
func applyPaymentHeaders(h http.Header, invoiceID string, proof flux.PaymentProof, partner, walletAddress string, chain flux.ChainID) {
	h.Set(HeaderInvoiceID, invoiceID)
	h.Set(HeaderPayment, proof.Value())
	if partner != "" {
		h.Set(HeaderPartner, partner)
	}
	if walletAddress != "" {
		h.Set(HeaderWalletAddress, walletAddress)
	}
	if chain != "" {
		h.Set(HeaderChain, string(chain))
	}
}
