package tonwallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/pkg/logger"
)

func TestBalanceNanoSelectsWallet(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"balance_nano":5000000000}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, WalletAddress: "EQsender"}, logger.NewNop())
	balance, err := client.BalanceNano(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5_000_000_000), balance)
	assert.Equal(t, "address=EQsender", gotQuery)
}

func TestTransferCarriesSendingWallet(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"tx_hash":"abc123"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, WalletAddress: "EQsender"}, logger.NewNop())
	txHash, err := client.Transfer(context.Background(), "EQmarket", 1_000_000_000, "cGF5")
	require.NoError(t, err)

	assert.Equal(t, "abc123", txHash)
	assert.Equal(t, "EQsender", got["from"])
	assert.Equal(t, "EQmarket", got["address"])
	assert.Equal(t, float64(1_000_000_000), got["amount_nano"])
}
