package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flux "github.com/fluxprotocol/flux-go"
)

func TestInvoiceCacheRoundTrip(t *testing.T) {
	cache := NewInvoiceCache(testClient(t))
	ctx := context.Background()

	proof := flux.PaymentProof{Kind: flux.ProofKindCardanoTxHash, TxHash: "abc123"}
	require.NoError(t, cache.SetPaid(ctx, "inv-1", proof, "key-1"))

	got, err := cache.GetPaid(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, proof, *got)

	got, err = cache.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, proof, *got)
}

func TestInvoiceCacheUnknownInvoice(t *testing.T) {
	cache := NewInvoiceCache(testClient(t))
	ctx := context.Background()

	got, err := cache.GetPaid(ctx, "never-paid")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = cache.GetByIdempotencyKey(ctx, "never-used")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvoiceCacheEmptyIdempotencyKeyNotIndexed(t *testing.T) {
	client := testClient(t)
	cache := NewInvoiceCache(client)
	ctx := context.Background()

	proof := flux.PaymentProof{Kind: flux.ProofKindEVMTxHash, TxHash: "0xabc"}
	require.NoError(t, cache.SetPaid(ctx, "inv-1", proof, ""))

	got, err := cache.GetByIdempotencyKey(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	keys, err := client.Keys(ctx, idempotencyKeyPrefix+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestInvoiceCacheLastWriteWins(t *testing.T) {
	cache := NewInvoiceCache(testClient(t))
	ctx := context.Background()

	first := flux.PaymentProof{Kind: flux.ProofKindCardanoTxHash, TxHash: "first"}
	second := flux.PaymentProof{Kind: flux.ProofKindCardanoTxHash, TxHash: "second"}
	require.NoError(t, cache.SetPaid(ctx, "inv-1", first, "key-1"))
	require.NoError(t, cache.SetPaid(ctx, "inv-1", second, "key-1"))

	got, err := cache.GetPaid(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.TxHash)
}

func TestInvoiceCacheTTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewInvoiceCache(client, WithTTL(time.Minute))
	ctx := context.Background()

	proof := flux.PaymentProof{Kind: flux.ProofKindCardanoSignedTx, CBORHex: "84a4..."}
	require.NoError(t, cache.SetPaid(ctx, "inv-1", proof, "key-1"))

	mr.FastForward(2 * time.Minute)

	got, err := cache.GetPaid(ctx, "inv-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
