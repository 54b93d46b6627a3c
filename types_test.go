package flux

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestChainID_Parse(t *testing.T) {
	ns, ref, err := ChainID("cardano:mainnet").Parse()
	require.NoError(t, err)
	assert.Equal(t, "cardano", ns)
	assert.Equal(t, "mainnet", ref)

	_, _, err = ChainID("not-namespaced").Parse()
	assert.Error(t, err)
}

func TestChainID_Match(t *testing.T) {
	assert.True(t, ChainID("eip155:8453").Match("eip155:8453"))
	assert.True(t, ChainID("eip155:8453").Match("eip155:*"))
	assert.False(t, ChainID("eip155:8453").Match("cardano:*"))
	assert.False(t, ChainID("cardano:mainnet").Match("cardano:preprod"))
}

func TestChainSet_Supports(t *testing.T) {
	set := ChainSet{"cardano:mainnet", "eip155:*"}

	assert.True(t, set.Supports(PaymentRequest{Chain: "cardano:mainnet"}))
	assert.True(t, set.Supports(PaymentRequest{Chain: "eip155:84532"}))
	assert.False(t, set.Supports(PaymentRequest{Chain: "cardano:preprod"}))
	assert.False(t, ChainSet{}.Supports(PaymentRequest{Chain: "cardano:mainnet"}))
}

func TestPaymentProof_Value(t *testing.T) {
	hash := PaymentProof{Kind: ProofKindCardanoTxHash, TxHash: "tx123"}
	assert.Equal(t, "tx123", hash.Value())

	evm := PaymentProof{Kind: ProofKindEVMTxHash, TxHash: "0xfeed"}
	assert.Equal(t, "0xfeed", evm.Value())

	signed := PaymentProof{Kind: ProofKindCardanoSignedTx, CBORHex: "84a4..."}
	assert.Equal(t, "84a4...", signed.Value())
}

func TestPaymentProof_Validate(t *testing.T) {
	assert.NoError(t, PaymentProof{Kind: ProofKindCardanoTxHash, TxHash: "tx"}.Validate())
	assert.NoError(t, PaymentProof{Kind: ProofKindCardanoSignedTx, CBORHex: "84"}.Validate())

	// Hash kinds must not carry a signed payload
	assert.Error(t, PaymentProof{Kind: ProofKindEVMTxHash, TxHash: "tx", CBORHex: "84"}.Validate())
	assert.Error(t, PaymentProof{Kind: ProofKindEVMTxHash}.Validate())
	assert.Error(t, PaymentProof{Kind: "bogus", TxHash: "tx"}.Validate())
}

func TestBudgetExceededError_Message(t *testing.T) {
	perReq := &BudgetExceededError{
		Limit:   LimitPerRequest,
		Amount:  mustDec("2000000"),
		Ceiling: mustDec("1000000"),
	}
	assert.Contains(t, perReq.Error(), "per-request")
	assert.Contains(t, perReq.Error(), "2000000")

	perDay := &BudgetExceededError{
		Limit:   LimitPerDay,
		Chain:   "cardano:mainnet",
		Asset:   "ADA",
		Amount:  mustDec("1"),
		Spent:   mustDec("10"),
		Ceiling: mustDec("10"),
	}
	assert.Contains(t, perDay.Error(), "daily")
	assert.Contains(t, perDay.Error(), "cardano:mainnet")
}
