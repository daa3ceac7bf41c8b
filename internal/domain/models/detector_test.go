package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatchKeepsCollectionsWhenEmpty(t *testing.T) {
	base := DetectorConfig{
		Sysname:   "Alpha",
		Providers: []Provider{{Key: "p1"}},
		Symbols:   []Symbol{{Name: "BTCUSDT"}},
		Intervals: []Timeframe{TF1m},
	}
	active := true

	got := DetectorPatch{IsActive: &active, Providers: []Provider{}}.Apply(base)

	assert.True(t, got.IsActive)
	assert.Equal(t, "Alpha", got.Sysname)
	assert.Equal(t, []Provider{{Key: "p1"}}, got.Providers)
	assert.Equal(t, []Symbol{{Name: "BTCUSDT"}}, got.Symbols)
}

func TestPatchReplacesNonEmptyCollections(t *testing.T) {
	base := DetectorConfig{Symbols: []Symbol{{Name: "BTCUSDT"}}}

	got := DetectorPatch{Symbols: []Symbol{{Name: "ETHUSDT"}}}.Apply(base)

	assert.Equal(t, []Symbol{{Name: "ETHUSDT"}}, got.Symbols)
	assert.Equal(t, []Symbol{{Name: "BTCUSDT"}}, base.Symbols)
}

func TestProviderMergeFetchedOriginalWins(t *testing.T) {
	p := Provider{Key: "own", RestAPIURL: "http://a"}
	fetched := Provider{Key: "remote", Title: "Remote", Connectors: []Connector{{ConnectorType: "binance", IsActive: true}}}

	got := p.MergeFetched(fetched)

	assert.Equal(t, "own", got.Key)
	assert.Equal(t, "Remote", got.Title)
	assert.Len(t, got.Connectors, 1)
}

func TestProviderHasValidURL(t *testing.T) {
	assert.True(t, Provider{RestAPIURL: "https://venue.example/api"}.HasValidURL())
	assert.False(t, Provider{RestAPIURL: "venue.example"}.HasValidURL())
	assert.False(t, Provider{RestAPIURL: ""}.HasValidURL())
	assert.False(t, Provider{RestAPIURL: "ftp://venue"}.HasValidURL())
}
