package gatewayrepo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCharge_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges", r.URL.Path)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "sk_test", user)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.EqualValues(t, 6440, body["amount"])
		require.Equal(t, "usd", body["currency"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ch_123", "status": "succeeded"})
	}))
	defer srv.Close()

	g := NewHTTP("sk_test", srv.URL)
	resp, err := g.Charge(context.Background(), ChargeReq{AmountCents: 6440, Currency: "usd", Description: "Book rental"})
	require.NoError(t, err)
	require.Equal(t, "ch_123", resp.TransactionRef)
}

func TestCharge_Declined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "failed", "error_message": "card declined"})
	}))
	defer srv.Close()

	g := NewHTTP("sk_test", srv.URL)
	_, err := g.Charge(context.Background(), ChargeReq{AmountCents: 100, Currency: "usd"})
	require.Error(t, err)

	var de *DeclinedError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "card declined", de.Reason)
}

func TestRefund_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ch_123", body["charge"])
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "succeeded"})
	}))
	defer srv.Close()

	g := NewHTTP("sk_test", srv.URL)
	require.NoError(t, g.Refund(context.Background(), "ch_123"))
}

func TestCharge_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTP("sk_test", srv.URL)
	_, err := g.Charge(context.Background(), ChargeReq{AmountCents: 100, Currency: "usd"})
	require.Error(t, err)

	var de *DeclinedError
	require.False(t, errors.As(err, &de), "5xx must not look like a card decline")
}
