package flux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInvoiceCache_RoundTrip(t *testing.T) {
	cache := NewMemoryInvoiceCache()
	ctx := context.Background()

	proof := PaymentProof{Kind: ProofKindCardanoTxHash, TxHash: "abc123"}
	require.NoError(t, cache.SetPaid(ctx, "inv_1", proof, ""))

	got, err := cache.GetPaid(ctx, "inv_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, proof, *got)

	// Unknown invoice returns nil, not an error
	got, err = cache.GetPaid(ctx, "inv_unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryInvoiceCache_IdempotencyKey(t *testing.T) {
	cache := NewMemoryInvoiceCache()
	ctx := context.Background()

	proof := PaymentProof{Kind: ProofKindEVMTxHash, TxHash: "0xdeadbeef"}
	require.NoError(t, cache.SetPaid(ctx, "inv_2", proof, "key_abc"))

	got, err := cache.GetByIdempotencyKey(ctx, "key_abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, proof, *got)

	// Storing without a key leaves key lookups empty
	require.NoError(t, cache.SetPaid(ctx, "inv_3", proof, ""))
	got, err = cache.GetByIdempotencyKey(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got, "empty-string key is never stored")
}

func TestMemoryInvoiceCache_LastWriteWins(t *testing.T) {
	cache := NewMemoryInvoiceCache()
	ctx := context.Background()

	first := PaymentProof{Kind: ProofKindCardanoTxHash, TxHash: "first"}
	second := PaymentProof{Kind: ProofKindCardanoTxHash, TxHash: "second"}

	require.NoError(t, cache.SetPaid(ctx, "inv_4", first, ""))
	require.NoError(t, cache.SetPaid(ctx, "inv_4", second, ""))

	got, err := cache.GetPaid(ctx, "inv_4")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.TxHash)
	assert.Equal(t, 1, cache.Len(), "re-store overwrites, it does not duplicate")
}

func TestMemoryInvoiceCache_Clear(t *testing.T) {
	cache := NewMemoryInvoiceCache()
	ctx := context.Background()

	require.NoError(t, cache.SetPaid(ctx, "inv_5", PaymentProof{Kind: ProofKindCardanoTxHash, TxHash: "x"}, "k"))
	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	got, err := cache.GetByIdempotencyKey(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}
