package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	flux "github.com/fluxprotocol/flux-go"
	"github.com/fluxprotocol/flux-go/logger"
	"github.com/fluxprotocol/flux-go/metrics"
)

// StatusError reports a non-2xx response that was not a Flux payment
// demand, on either the initial attempt or the paid retry.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Client is the auto-paying Flux HTTP client. When a request hits a Flux
// 402 payment demand, the client parses the invoice, consults the invoice
// cache and the budget tracker, delegates the payment to the configured
// payer, and retries the request with payment proof headers.
//
// A single Client is safe for concurrent use; its suspension points are
// exactly the network round-trips and the payer invocation.
type Client struct {
	baseURL    string
	payer      flux.Payer
	partner    string
	httpClient *http.Client
	headers    map[string]string

	cache     flux.InvoiceCache
	tracker   *flux.BudgetTracker
	coalescer *flux.PaymentCoalescer

	log     logger.Logger
	metrics metrics.Recorder
}

type clientOptions struct {
	httpClient    *http.Client
	timeout       time.Duration
	partner       string
	headers       map[string]string
	budget        *flux.BudgetConfig
	budgetStore   flux.BudgetStore
	cache         flux.InvoiceCache
	coalescingTTL time.Duration
	log           logger.Logger
	metrics       metrics.Recorder
}

// Option configures the client.
type Option func(*clientOptions)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithTimeout sets the request timeout for the default HTTP client.
// Ignored when WithHTTPClient is supplied.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithPartner sets the partner identifier attached to paid retries.
func WithPartner(partner string) Option {
	return func(o *clientOptions) { o.partner = partner }
}

// WithHeaders sets default headers sent on every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *clientOptions) { o.headers = headers }
}

// WithBudget enables budget enforcement with the given limits.
func WithBudget(config flux.BudgetConfig) Option {
	return func(o *clientOptions) { o.budget = &config }
}

// WithBudgetStore sets the ledger backend for budget enforcement.
// Only meaningful together with WithBudget; defaults to an in-memory
// store.
func WithBudgetStore(store flux.BudgetStore) Option {
	return func(o *clientOptions) { o.budgetStore = store }
}

// WithInvoiceCache sets the proof cache backend. Defaults to an
// in-memory cache.
func WithInvoiceCache(cache flux.InvoiceCache) Option {
	return func(o *clientOptions) { o.cache = cache }
}

// WithPaymentCoalescing makes concurrent payments of the same invoice
// invoke the payer at most once, holding completed proofs for ttl.
// Without it, the in-memory cache leaves a narrow window where two
// concurrent callers can both pay before either stores.
func WithPaymentCoalescing(ttl time.Duration) Option {
	return func(o *clientOptions) { o.coalescingTTL = ttl }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// WithMetrics sets the metrics recorder. Defaults to a no-op recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *clientOptions) { o.metrics = r }
}

// NewClient creates an auto-paying client for baseURL using payer to
// execute payments.
func NewClient(baseURL string, payer flux.Payer, opts ...Option) (*Client, error) {
	if payer == nil {
		return nil, fmt.Errorf("payer is required")
	}

	o := clientOptions{
		timeout: 120 * time.Second,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		payer:      payer,
		partner:    o.partner,
		httpClient: o.httpClient,
		headers:    o.headers,
		cache:      o.cache,
		log:        o.log,
		metrics:    o.metrics,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: o.timeout}
	}
	if c.cache == nil {
		c.cache = flux.NewMemoryInvoiceCache()
	}
	if o.budget != nil {
		store := o.budgetStore
		if store == nil {
			store = flux.NewMemoryBudgetStore()
		}
		tracker, err := flux.NewBudgetTracker(*o.budget, store)
		if err != nil {
			return nil, err
		}
		c.tracker = tracker
	}
	if o.coalescingTTL > 0 {
		c.coalescer = flux.NewPaymentCoalescer(o.coalescingTTL)
	}

	return c, nil
}

// Get issues a GET request with automatic payment handling.
func (c *Client) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, endpoint, nil, nil)
}

// Post issues a POST request with automatic payment handling.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPost, endpoint, body, nil)
}

// Request issues a request with automatic payment handling and returns
// the final response body.
//
// A Flux 402 response triggers the payment flow: invoice parsing, invoice
// cache lookup, budget check, payment, proof caching, spend recording and
// a single retry carrying the proof headers. Any other response surfaces
// as-is: 2xx bodies are returned, everything else becomes a StatusError.
// Budget rejections and payer failures abort the call before any cache or
// ledger mutation.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any, headers map[string]string) (json.RawMessage, error) {
	url := c.baseURL + endpoint

	bodyBytes, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	idemKey := idempotencyKey(method, url, bodyBytes)
	baseHeaders := c.requestHeaders(headers, idemKey)

	resp, err := c.send(ctx, method, url, bodyBytes, baseHeaders)
	if err != nil {
		return nil, err
	}

	if !IsPaymentRequired(resp) {
		return readResponse(resp)
	}

	invoice, err := readAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading payment demand: %w", err)
	}
	request, err := ParseInvoice(invoice)
	if err != nil {
		return nil, fmt.Errorf("parsing payment demand: %w", err)
	}

	c.log.Debug("payment required", map[string]any{
		"invoiceId": request.InvoiceID,
		"chain":     request.Chain,
		"asset":     request.Asset,
		"amount":    request.AmountUnits,
	})
	c.metrics.IncCounter("payment_required", chainLabel(request.Chain))

	proof, err := c.resolveProof(ctx, request, idemKey)
	if err != nil {
		return nil, err
	}

	// The wallet address header is best effort; the proof already
	// identifies the payment.
	walletAddress, _ := c.payer.GetAddress(ctx, request.Chain)

	retryHeaders := baseHeaders.Clone()
	applyPaymentHeaders(retryHeaders, request.InvoiceID, proof, c.partner, walletAddress, request.Chain)

	retryResp, err := c.send(ctx, method, url, bodyBytes, retryHeaders)
	if err != nil {
		return nil, err
	}
	return readResponse(retryResp)
}

// WalletAddress returns the payer's wallet address for a chain.
func (c *Client) WalletAddress(ctx context.Context, chain flux.ChainID) (string, error) {
	return c.payer.GetAddress(ctx, chain)
}

// Balance returns the payer's balance for an asset in smallest units.
func (c *Client) Balance(ctx context.Context, chain flux.ChainID, asset string) (string, error) {
	return c.payer.GetBalance(ctx, chain, asset)
}

// RemainingBudget returns the remaining daily budget for a chain/asset.
// The boolean is false when no daily ceiling is configured.
func (c *Client) RemainingBudget(ctx context.Context, chain flux.ChainID, asset string) (decimal.Decimal, bool, error) {
	if c.tracker == nil {
		return decimal.Zero, false, nil
	}
	return c.tracker.Remaining(ctx, chain, asset)
}

// resolveProof produces the payment proof for an invoice: a cached proof
// when the invoice was already paid (no budget interaction on that path),
// otherwise a fresh payment, coalesced per invoice id when enabled.
func (c *Client) resolveProof(ctx context.Context, request flux.PaymentRequest, idemKey string) (flux.PaymentProof, error) {
	if request.InvoiceID != "" {
		cached, err := c.cache.GetPaid(ctx, request.InvoiceID)
		if err != nil {
			return flux.PaymentProof{}, fmt.Errorf("invoice cache: %w", err)
		}
		if cached != nil {
			c.log.Debug("reusing cached payment proof", map[string]any{"invoiceId": request.InvoiceID})
			c.metrics.IncCounter("invoice_cache_hit", chainLabel(request.Chain))
			return *cached, nil
		}
		if c.coalescer != nil {
			return c.payCoalesced(ctx, request, idemKey)
		}
	}
	return c.pay(ctx, request, idemKey)
}

// payCoalesced funnels concurrent payments of the same invoice through a
// single payer invocation. Waiters whose winner failed attempt the
// payment themselves.
func (c *Client) payCoalesced(ctx context.Context, request flux.PaymentRequest, idemKey string) (flux.PaymentProof, error) {
	for {
		status, cached, ch := c.coalescer.CheckAndMark(request.InvoiceID)
		switch status {
		case flux.CoalesceCached:
			return *cached, nil

		case flux.CoalesceInFlight:
			proof, err := c.coalescer.WaitForProof(ctx, request.InvoiceID, ch)
			if err != nil {
				return flux.PaymentProof{}, err
			}
			if proof != nil {
				return *proof, nil
			}
			// The in-flight payment failed; take our turn.

		case flux.CoalesceNotFound:
			proof, err := c.pay(ctx, request, idemKey)
			if err != nil {
				c.coalescer.Fail(request.InvoiceID, ch)
				return flux.PaymentProof{}, err
			}
			completed := proof
			c.coalescer.Complete(request.InvoiceID, &completed, ch)
			return proof, nil
		}
	}
}

// pay runs the budget check, executes the payment, and persists the
// outcome. The post-payment writes run on a cancel-detached context so an
// abandoned caller cannot lose the recorded spend or the cached proof.
func (c *Client) pay(ctx context.Context, request flux.PaymentRequest, idemKey string) (flux.PaymentProof, error) {
	amount, err := decimal.NewFromString(request.AmountUnits)
	if err != nil {
		return flux.PaymentProof{}, flux.NewPaymentError(flux.ErrCodeInvalidAmount,
			fmt.Sprintf("invoice amount %q is not a decimal", request.AmountUnits), nil)
	}

	if c.tracker != nil {
		if err := c.tracker.Check(ctx, request.Chain, request.Asset, amount); err != nil {
			c.log.Warn("payment rejected by budget", map[string]any{
				"invoiceId": request.InvoiceID,
				"amount":    request.AmountUnits,
				"error":     err.Error(),
			})
			c.metrics.IncCounter("budget_rejected", chainLabel(request.Chain))
			return flux.PaymentProof{}, err
		}
	}

	if !c.payer.Supports(request) {
		return flux.PaymentProof{}, flux.NewUnsupportedChainError(request.Chain)
	}

	start := time.Now()
	proof, err := c.payer.Pay(ctx, request)
	c.metrics.ObserveLatency("pay", time.Since(start), chainLabel(request.Chain))
	if err != nil {
		c.metrics.IncCounter("payment_failed", chainLabel(request.Chain))
		return flux.PaymentProof{}, err
	}

	// Once the payment happened, the proof and the spend must land even
	// if the caller goes away before the retry completes.
	detached := context.WithoutCancel(ctx)
	if request.InvoiceID != "" {
		if err := c.cache.SetPaid(detached, request.InvoiceID, proof, idemKey); err != nil {
			return flux.PaymentProof{}, fmt.Errorf("storing payment proof: %w", err)
		}
	}
	if c.tracker != nil {
		if err := c.tracker.Record(detached, request.Chain, request.Asset, amount); err != nil {
			return flux.PaymentProof{}, fmt.Errorf("recording spend: %w", err)
		}
	}

	c.log.Info("payment completed", map[string]any{
		"invoiceId": request.InvoiceID,
		"chain":     request.Chain,
		"asset":     request.Asset,
		"amount":    request.AmountUnits,
		"proofKind": proof.Kind,
	})
	c.metrics.IncCounter("payment_succeeded", chainLabel(request.Chain))

	return proof, nil
}

// requestHeaders merges default headers, per-call headers, and the
// idempotency key.
func (c *Client) requestHeaders(extra map[string]string, idemKey string) http.Header {
	h := make(http.Header)
	for k, v := range c.headers {
		h.Set(k, v)
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	h.Set(HeaderIdempotencyKey, idemKey)
	return h
}

// send issues one HTTP attempt. Each attempt carries a fresh request id
// for log correlation.
func (c *Client) send(ctx context.Context, method, url string, body []byte, headers http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header = headers.Clone()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())

	return c.httpClient.Do(req)
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return data, nil
}

// idempotencyKey derives a deterministic key from the request identity:
// a SHA-256 over the canonical JSON of method, URL and body, truncated to
// 32 hex characters.
func idempotencyKey(method, url string, body []byte) string {
	payload := struct {
		Body   json.RawMessage `json:"body"`
		Method string          `json:"method"`
		URL    string          `json:"url"`
	}{
		Body:   json.RawMessage(body),
		Method: method,
		URL:    url,
	}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:32]
}

func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// readResponse surfaces the final outcome: 2xx bodies pass through,
// anything else becomes a StatusError carrying the body.
func readResponse(resp *http.Response) (json.RawMessage, error) {
	data, err := readAll(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}
	return json.RawMessage(data), nil
}

func chainLabel(chain flux.ChainID) map[string]string {
	return map[string]string{"chain": string(chain)}
}
