package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"seq": 1}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `{"seq": 2}`)
		fmt.Fprintln(w, `{"seq": 3}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, newFakePayer())
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), http.MethodGet, "/events", nil, nil)
	require.NoError(t, err)
	defer stream.Close()

	var seqs []int
	for stream.Next() {
		var event struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, stream.Decode(&event))
		seqs = append(seqs, event.Seq)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []int{1, 2, 3}, seqs)
}

func TestStreamSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `: keepalive comment`)
		fmt.Fprintln(w, `event: message`)
		fmt.Fprintln(w, `data: {"token": "hel"}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: {"token": "lo"}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, newFakePayer())
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), http.MethodGet, "/events", nil, nil)
	require.NoError(t, err)
	defer stream.Close()

	var tokens []string
	for stream.Next() {
		var event struct {
			Token string `json:"token"`
		}
		require.NoError(t, stream.Decode(&event))
		tokens = append(tokens, event.Token)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"hel", "lo"}, tokens)
}

func TestStreamSSESkipsNonJSONData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data: {"seq": 1}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: ping`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: {"seq": 2}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, newFakePayer())
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), http.MethodGet, "/events", nil, nil)
	require.NoError(t, err)
	defer stream.Close()

	var seqs []int
	for stream.Next() {
		var event struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, stream.Decode(&event))
		seqs = append(seqs, event.Seq)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []int{1, 2}, seqs)
}

func TestStreamPaysAndRetries(t *testing.T) {
	var paid atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderPayment) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			fmt.Fprint(w, `{"invoiceId": "inv-s1", "amount": "100", "chain": "cardano-mainnet", "payTo": "addr1"}`)
			return
		}
		paid.Store(true)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"seq": 1}`)
	}))
	defer srv.Close()

	payer := newFakePayer()
	client, err := NewClient(srv.URL, payer)
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), http.MethodGet, "/events", nil, nil)
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	assert.JSONEq(t, `{"seq": 1}`, string(stream.Bytes()))
	assert.False(t, stream.Next())
	require.NoError(t, stream.Err())

	assert.True(t, paid.Load())
	assert.Equal(t, 1, payer.payCount())
}

func TestStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no stream for you", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, newFakePayer())
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), http.MethodGet, "/events", nil, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}
