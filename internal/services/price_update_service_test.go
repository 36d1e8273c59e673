package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fasset-backend/internal/clients"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOracleStub serves fixed prices keyed by symbol; unknown symbols 404.
func newOracleStub(t *testing.T, prices map[string]clients.PriceResponse) *clients.PriceOracleClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		resp, ok := prices[symbol]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown symbol %q", symbol), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return clients.NewPriceOracleClient(srv.URL)
}

type recordingListener struct {
	updates chan string
}

func (l *recordingListener) OnPriceChange(symbol string, value string, decimals uint8) {
	l.updates <- symbol
}

func TestUpdatePricesInstallsAllThreeSymbols(t *testing.T) {
	e := newServiceEnv(t)
	ctx := context.Background()
	e.newAgent(t, "vault1")

	oracle := newOracleStub(t, map[string]clients.PriceResponse{
		"FXRP": {Symbol: "FXRP", Value: "500", Decimals: 2, Timestamp: testEpoch},
		"USDC": {Symbol: "USDC", Value: "100", Decimals: 2, Timestamp: testEpoch},
		"CFLR": {Symbol: "CFLR", Value: "100", Decimals: 2, Timestamp: testEpoch},
	})
	svc := NewPriceUpdateService(oracle, e.svc, e.events)

	listener := &recordingListener{updates: make(chan string, 3)}
	svc.RegisterListener(listener)

	svc.updatePrices()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case symbol := <-listener.updates:
			seen[symbol] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for price change notifications")
		}
	}
	assert.True(t, seen["FXRP"] && seen["USDC"] && seen["CFLR"])

	// snapshot history persisted per symbol
	snap, err := e.events.LatestPriceSnapshot(ctx, "FXRP")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "500", snap.Value)

	// conversions keep working on the installed prices
	_, err = e.svc.ReserveCollateral(ctx, "minter1", "vault1", 1)
	assert.NoError(t, err)
}

func TestUpdatePricesKeepsPreviousSetOnPartialFetch(t *testing.T) {
	e := newServiceEnv(t)
	ctx := context.Background()
	e.newAgent(t, "vault1")

	// pool token symbol missing: the whole refresh is dropped
	oracle := newOracleStub(t, map[string]clients.PriceResponse{
		"FXRP": {Symbol: "FXRP", Value: "9999999", Decimals: 2, Timestamp: testEpoch},
		"USDC": {Symbol: "USDC", Value: "100", Decimals: 2, Timestamp: testEpoch},
	})
	svc := NewPriceUpdateService(oracle, e.svc, e.events)
	svc.updatePrices()

	assert.Empty(t, e.events.snapshots, "partial fetch must not persist snapshots")

	// the old prices still serve reservations
	_, err := e.svc.ReserveCollateral(ctx, "minter1", "vault1", 1)
	assert.NoError(t, err)
}

func TestUpdatePricesRejectsInvalidOracleValue(t *testing.T) {
	e := newServiceEnv(t)

	oracle := newOracleStub(t, map[string]clients.PriceResponse{
		"FXRP": {Symbol: "FXRP", Value: "not-a-number", Decimals: 2, Timestamp: testEpoch},
		"USDC": {Symbol: "USDC", Value: "100", Decimals: 2, Timestamp: testEpoch},
		"CFLR": {Symbol: "CFLR", Value: "100", Decimals: 2, Timestamp: testEpoch},
	})
	svc := NewPriceUpdateService(oracle, e.svc, e.events)
	svc.updatePrices()

	assert.Empty(t, e.events.snapshots)
}
