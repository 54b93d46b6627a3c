package flux

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodePaymentFailed       = "payment_failed"
	ErrCodeUnsupportedChain    = "unsupported_chain"
	ErrCodeInsufficientBalance = "insufficient_balance"
	ErrCodeInvalidAmount       = "invalid_amount"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewUnsupportedChainError reports that a payer cannot handle the
// request's chain.
func NewUnsupportedChainError(chain ChainID) *PaymentError {
	return &PaymentError{
		Code:    ErrCodeUnsupportedChain,
		Message: fmt.Sprintf("chain %s is not supported by the configured payer", chain),
		Details: map[string]interface{}{"chain": string(chain)},
	}
}

// NewInsufficientBalanceError reports that the wallet cannot cover the
// requested amount.
func NewInsufficientBalanceError(chain ChainID, asset, amount string) *PaymentError {
	return &PaymentError{
		Code:    ErrCodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient %s balance on %s for amount %s", asset, chain, amount),
		Details: map[string]interface{}{
			"chain":  string(chain),
			"asset":  asset,
			"amount": amount,
		},
	}
}

// Budget limit kinds reported by BudgetExceededError.
const (
	LimitPerRequest = "per_request"
	LimitPerDay     = "per_day"
)

// BudgetExceededError reports that a payment would violate a configured
// spending ceiling. Limit names which ceiling; Spent is only meaningful
// for the per-day limit.
type BudgetExceededError struct {
	Limit   string
	Chain   ChainID
	Asset   string
	Amount  decimal.Decimal
	Spent   decimal.Decimal
	Ceiling decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	if e.Limit == LimitPerRequest {
		return fmt.Sprintf("budget exceeded: amount %s exceeds per-request limit %s",
			e.Amount, e.Ceiling)
	}
	return fmt.Sprintf("budget exceeded: spent %s + amount %s exceeds daily limit %s for %s/%s",
		e.Spent, e.Amount, e.Ceiling, e.Chain, e.Asset)
}
