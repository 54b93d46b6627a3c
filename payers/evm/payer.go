// Package evm implements a Flux payer for EVM chains using an ECDSA
// private key and JSON-RPC endpoints. Native transfers and ERC-20 token
// transfers are supported; the resulting proof is the transaction hash.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	flux "github.com/fluxprotocol/flux-go"
)

// transferSelector is the 4-byte selector of transfer(address,uint256).
var transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// balanceOfSelector is the 4-byte selector of balanceOf(address).
var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// ChainConfig describes one EVM chain the payer can spend on.
type ChainConfig struct {
	// RPC is the JSON-RPC endpoint, e.g. "https://mainnet.base.org".
	RPC string

	// Tokens maps asset symbols to ERC-20 contract addresses. Assets not
	// in the map are treated as the chain's native currency.
	Tokens map[string]common.Address
}

// Payer executes payments on EVM chains from a single ECDSA key.
type Payer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chains     map[flux.ChainID]ChainConfig

	mu      sync.Mutex
	clients map[flux.ChainID]*ethclient.Client
}

// NewPayer creates a payer from a hex-encoded private key (with or
// without the "0x" prefix) and per-chain configuration. Chain ids must be
// CAIP-2 eip155 identifiers, e.g. "eip155:8453".
func NewPayer(privateKeyHex string, chains map[flux.ChainID]ChainConfig) (*Payer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	for chain := range chains {
		if _, err := numericChainID(chain); err != nil {
			return nil, err
		}
	}

	return &Payer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chains:     chains,
		clients:    make(map[flux.ChainID]*ethclient.Client),
	}, nil
}

// Supports reports whether the payer is configured for the request's
// chain.
func (p *Payer) Supports(request flux.PaymentRequest) bool {
	_, ok := p.chains[request.Chain]
	return ok
}

// GetAddress returns the payer's address. The same key is used on every
// configured chain.
func (p *Payer) GetAddress(ctx context.Context, chain flux.ChainID) (string, error) {
	if _, ok := p.chains[chain]; !ok {
		return "", flux.NewUnsupportedChainError(chain)
	}
	return p.address.Hex(), nil
}

// Pay transfers the invoiced amount to the payTo address and waits for
// the transaction to be accepted by the node. The proof carries the
// transaction hash; it does not wait for confirmations.
func (p *Payer) Pay(ctx context.Context, request flux.PaymentRequest) (flux.PaymentProof, error) {
	cfg, ok := p.chains[request.Chain]
	if !ok {
		return flux.PaymentProof{}, flux.NewUnsupportedChainError(request.Chain)
	}
	chainID, err := numericChainID(request.Chain)
	if err != nil {
		return flux.PaymentProof{}, err
	}

	amount, ok := new(big.Int).SetString(request.AmountUnits, 10)
	if !ok || amount.Sign() < 0 {
		return flux.PaymentProof{}, flux.NewPaymentError(flux.ErrCodeInvalidAmount,
			fmt.Sprintf("amount %q is not a valid integer", request.AmountUnits), nil)
	}
	if !common.IsHexAddress(request.PayTo) {
		return flux.PaymentProof{}, flux.NewPaymentError(flux.ErrCodePaymentFailed,
			fmt.Sprintf("payTo %q is not an EVM address", request.PayTo), nil)
	}
	payTo := common.HexToAddress(request.PayTo)

	client, err := p.clientFor(ctx, request.Chain, cfg)
	if err != nil {
		return flux.PaymentProof{}, err
	}

	// Token transfers call the contract; native transfers carry value.
	var to common.Address
	var value *big.Int
	var data []byte
	if token, isToken := cfg.Tokens[request.Asset]; isToken {
		to = token
		value = new(big.Int)
		data = transferCalldata(payTo, amount)
	} else {
		to = payTo
		value = amount
	}

	if err := p.checkBalance(ctx, client, cfg, request, amount); err != nil {
		return flux.PaymentProof{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return flux.PaymentProof{}, fmt.Errorf("fetching nonce: %w", err)
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return flux.PaymentProof{}, fmt.Errorf("fetching gas tip: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return flux.PaymentProof{}, fmt.Errorf("fetching head: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	// tip + 2*baseFee keeps the cap valid across near-term base fee moves.
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gasLimit, err := client.EstimateGas(ctx, ethereumCallMsg(p.address, &to, value, data))
	if err != nil {
		return flux.PaymentProof{}, fmt.Errorf("estimating gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.privateKey)
	if err != nil {
		return flux.PaymentProof{}, fmt.Errorf("signing transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return flux.PaymentProof{}, flux.NewPaymentError(flux.ErrCodePaymentFailed,
			fmt.Sprintf("sending transaction: %v", err), map[string]interface{}{
				"chain": string(request.Chain),
			})
	}

	return flux.PaymentProof{
		Kind:   flux.ProofKindEVMTxHash,
		TxHash: signed.Hash().Hex(),
	}, nil
}

// GetBalance returns the payer's balance in smallest units: wei for the
// native currency, token units for configured ERC-20 assets.
func (p *Payer) GetBalance(ctx context.Context, chain flux.ChainID, asset string) (string, error) {
	cfg, ok := p.chains[chain]
	if !ok {
		return "", flux.NewUnsupportedChainError(chain)
	}
	client, err := p.clientFor(ctx, chain, cfg)
	if err != nil {
		return "", err
	}

	balance, err := p.balance(ctx, client, cfg, asset)
	if err != nil {
		return "", err
	}
	return balance.String(), nil
}

func (p *Payer) balance(ctx context.Context, client *ethclient.Client, cfg ChainConfig, asset string) (*big.Int, error) {
	if token, isToken := cfg.Tokens[asset]; isToken {
		data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(p.address.Bytes(), 32)...)
		out, err := client.CallContract(ctx, ethereumCallMsg(p.address, &token, nil, data), nil)
		if err != nil {
			return nil, fmt.Errorf("token balance call: %w", err)
		}
		return new(big.Int).SetBytes(out), nil
	}

	balance, err := client.BalanceAt(ctx, p.address, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching balance: %w", err)
	}
	return balance, nil
}

func (p *Payer) checkBalance(ctx context.Context, client *ethclient.Client, cfg ChainConfig, request flux.PaymentRequest, amount *big.Int) error {
	balance, err := p.balance(ctx, client, cfg, request.Asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return flux.NewInsufficientBalanceError(request.Chain, request.Asset, request.AmountUnits)
	}
	return nil
}

// clientFor returns a cached RPC client for the chain, dialing on first
// use.
func (p *Payer) clientFor(ctx context.Context, chain flux.ChainID, cfg ChainConfig) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[chain]; ok {
		return client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.RPC, err)
	}
	p.clients[chain] = client
	return client, nil
}

// Close releases all dialed RPC connections.
func (p *Payer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for chain, client := range p.clients {
		client.Close()
		delete(p.clients, chain)
	}
}

// numericChainID extracts the numeric chain id from a CAIP-2 eip155
// identifier.
func numericChainID(chain flux.ChainID) (*big.Int, error) {
	namespace, reference, found := strings.Cut(string(chain), ":")
	if !found || namespace != "eip155" {
		return nil, flux.NewUnsupportedChainError(chain)
	}
	id, ok := new(big.Int).SetString(reference, 10)
	if !ok {
		return nil, flux.NewUnsupportedChainError(chain)
	}
	return id, nil
}

func ethereumCallMsg(from common.Address, to *common.Address, value *big.Int, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: to, Value: value, Data: data}
}

// transferCalldata encodes transfer(address,uint256).
func transferCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

var _ flux.Payer = (*Payer)(nil)
