package moniepoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
}

func TestClient_CreateVirtualAccount(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		var got map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/virtual-account/create", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(map[string]string{
				"account_number": "9012345678",
				"account_name":   "Coopa Escrow - req12345",
				"reference":      "COOPA-req123456789",
			})
		})

		acct, err := client.CreateVirtualAccount(context.Background(), "req123456789", 50000, "Unity Co-op")
		require.NoError(t, err)
		assert.Equal(t, "9012345678", acct.AccountNumber)
		assert.Equal(t, BankName, acct.BankName)
		assert.Equal(t, "COOPA-req123456789", acct.Reference)

		assert.Equal(t, "Coopa Escrow - req12345", got["account_name"])
		assert.Equal(t, "COOPA-req123456789", got["reference"])
		assert.Equal(t, "Unity Co-op", got["customer_name"])
		assert.Equal(t, float64(50000), got["amount"])
	})

	t.Run("short request id", func(t *testing.T) {
		var got createAccountRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			w.Write([]byte(`{"account_number":"1"}`))
		})
		_, err := client.CreateVirtualAccount(context.Background(), "r1", 10, "c")
		require.NoError(t, err)
		assert.Equal(t, "Coopa Escrow - r1", got.AccountName)
	})

	t.Run("non-2xx is a gateway error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		})
		_, err := client.CreateVirtualAccount(context.Background(), "req1", 10, "c")
		var gwErr *GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
		assert.Equal(t, "upstream down", gwErr.Body)
	})
}

func TestClient_CheckBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/virtual-account/balance", r.URL.Path)
		var body balanceRequest
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "9012345678", body.AccountNumber)
		w.Write([]byte(`{"balance": 75000}`))
	})

	bal, err := client.CheckBalance(context.Background(), "9012345678")
	require.NoError(t, err)
	assert.Equal(t, int64(75000), bal.Balance)
	assert.Equal(t, "NGN", bal.Currency)
	assert.True(t, bal.Verified)
}

func TestClient_Transfers(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body transferRequest
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "9012345678", body.SourceAccount)
		assert.Equal(t, "058", body.DestinationBankCode)
		w.Write([]byte(`{"transaction_id":"txn-1","status":"SUCCESS"}`))
	})

	transfer := Transfer{
		SourceAccount:            "9012345678",
		Amount:                   1000,
		DestinationBankCode:      "058",
		DestinationAccountNumber: "0123456789",
		DestinationAccountName:   "Agro Supplies",
	}

	res, err := client.SettleFunds(context.Background(), transfer)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", res.TransactionID)
	assert.True(t, res.Completed())

	res, err = client.RefundFunds(context.Background(), transfer)
	require.NoError(t, err)
	assert.True(t, res.Accepted())

	assert.Equal(t, []string{"/virtual-account/settle", "/virtual-account/refund"}, paths)
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(Config{})
	assert.False(t, client.Configured())
	_, err := client.CheckBalance(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTransferResult_States(t *testing.T) {
	assert.True(t, (&TransferResult{Status: "pending"}).InFlight())
	assert.False(t, (&TransferResult{Status: "pending"}).Completed())
	assert.False(t, (&TransferResult{Status: "failed"}).Accepted())
	assert.True(t, (&TransferResult{Status: "completed"}).Completed())
}
