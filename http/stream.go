package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxStreamLineSize bounds a single streamed line. NDJSON events from
// paid endpoints can carry large payloads.
const maxStreamLineSize = 10 * 1024 * 1024

// Stream is a forward-only reader over a streaming response body. It
// understands newline-delimited JSON and server-sent events; SSE framing
// is detected from the response content type and unwrapped transparently.
//
// A Stream is not safe for concurrent use. Close must be called when the
// consumer is done, whether or not the stream was drained.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	sse     bool

	current []byte
	err     error
}

func newStream(resp *http.Response) *Stream {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)
	return &Stream{
		body:    resp.Body,
		scanner: scanner,
		sse:     strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream"),
	}
}

// Next advances to the next event, skipping blank lines, SSE comments and
// non-data SSE fields. It returns false when the stream is exhausted or
// failed; check Err afterwards.
func (s *Stream) Next() bool {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if s.sse {
			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				continue
			}
			line = bytes.TrimSpace(data)
			if len(line) == 0 || bytes.Equal(line, []byte("[DONE]")) {
				continue
			}
			// Some SSE endpoints interleave non-JSON data lines
			// (keepalives, status strings); skip those.
			if !json.Valid(line) {
				continue
			}
		}
		s.current = append(s.current[:0], line...)
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Bytes returns the raw bytes of the current event. The slice is only
// valid until the next call to Next.
func (s *Stream) Bytes() []byte {
	return s.current
}

// Decode unmarshals the current event into v.
func (s *Stream) Decode(v any) error {
	return json.Unmarshal(s.current, v)
}

// Err returns the first error encountered while reading.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Stream issues a request with automatic payment handling and returns the
// response as a Stream. The payment decision flow is identical to
// Request; only the final response body is consumed incrementally instead
// of being read whole.
func (c *Client) Stream(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*Stream, error) {
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
		return streamResponse(resp)
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

	walletAddress, _ := c.payer.GetAddress(ctx, request.Chain)

	retryHeaders := baseHeaders.Clone()
	applyPaymentHeaders(retryHeaders, request.InvoiceID, proof, c.partner, walletAddress, request.Chain)

	retryResp, err := c.send(ctx, method, url, bodyBytes, retryHeaders)
	if err != nil {
		return nil, err
	}
	return streamResponse(retryResp)
}

func streamResponse(resp *http.Response) (*Stream, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, err := readAll(resp)
		if err != nil {
			return nil, err
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}
	return newStream(resp), nil
}
