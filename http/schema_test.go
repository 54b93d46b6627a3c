package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInvoice(t *testing.T) {
	valid := []byte(`{
		"invoiceId": "inv-1",
		"amount": "2000000",
		"currency": "USDC",
		"payTo": "0xmerchant",
		"chain": "base-mainnet"
	}`)
	require.NoError(t, ValidateInvoice(valid))

	missing := []byte(`{"invoiceId": "inv-1", "amount": 100}`)
	err := ValidateInvoice(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payTo")

	badSplit := []byte(`{
		"amount": 100,
		"payTo": "addr1",
		"chain": "cardano-mainnet",
		"splits": [{"role": "provider"}]
	}`)
	require.Error(t, ValidateInvoice(badSplit))
}
