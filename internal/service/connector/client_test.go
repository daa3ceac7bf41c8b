package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	pkghttp "Detector/pkg/http"
)

func newServer(t *testing.T, h http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(pkghttp.NewClient()), srv.URL
}

func TestGetProviderOptions(t *testing.T) {
	c, url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/options", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.Provider{Key: "p1", Connectors: []models.Connector{{ConnectorType: "binance", IsActive: true}}})
	})

	p, err := c.GetProviderOptions(context.Background(), url+"/")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.Key)
	require.Len(t, p.Connectors, 1)
}

func TestGetAccountFillsRoute(t *testing.T) {
	c, url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "binance", r.URL.Query().Get("connectorType"))
		assert.Equal(t, "futures", r.URL.Query().Get("marketType"))
		_, _ = w.Write([]byte(`{"assets":[{"symbol":{"name":"USDT"},"availableBalance":10}]}`))
	})

	a, err := c.GetAccount(context.Background(), url, "binance", models.MarketFutures)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectorType("binance"), a.ConnectorType)
	assert.Equal(t, models.MarketFutures, a.MarketType)
	assert.Len(t, a.Assets, 1)
}

func TestGetCandlesDefaultsSymbolAndInterval(t *testing.T) {
	c, url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"time":1,"open":1,"high":1,"low":1,"close":1}]`))
	})

	out, err := c.GetCandles(context.Background(), repository.CandlesQuery{
		ProviderURL: url, ConnectorType: "binance", MarketType: models.MarketSpot,
		Symbol: "BTCUSDT", Interval: "1m", Limit: 100,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "BTCUSDT", out[0].Symbol.Name)
	assert.Equal(t, models.Timeframe("1m"), out[0].Interval)
}

func TestFailuresAreUpstreamUnavailable(t *testing.T) {
	c, url := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	ctx := context.Background()

	_, err := c.GetProviderOptions(ctx, url)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	err = c.RegisterDetector(ctx, url, models.DetectorConfig{Key: "k"})
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	err = c.ChangeLeverage(ctx, url, models.Route{}, models.Symbol{Name: "BTCUSDT"}, 5)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestUpdateDetectorAddressesByKey(t *testing.T) {
	var gotPath, gotMethod string
	c, url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
	})

	require.NoError(t, c.UpdateDetector(context.Background(), url, models.DetectorConfig{Key: "abc"}))
	assert.Equal(t, "/detectors/abc", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
}
