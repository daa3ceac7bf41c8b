package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
)

func nopFactory(*detector.Engine) detector.Strategy { return detector.BaseStrategy{} }

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestResolveByNameVariants(t *testing.T) {
	r := NewResolver("", nil)
	r.MustRegister(Definition{
		Name:    "sma-cross",
		Factory: nopFactory,
		Config: func() (models.DetectorConfig, error) {
			return models.DetectorConfig{Sysname: "SmaCross"}, nil
		},
	})

	for _, name := range []string{"sma-cross", "SmaCross", "SMA-CROSS", "sma_cross"} {
		res, err := r.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, "sma-cross", res.Name)
		assert.Equal(t, "SmaCross", res.Config.Sysname)
		assert.NotNil(t, res.Config.Providers)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewResolver("", nil)
	_, err := r.Resolve("Nope")
	assert.ErrorIs(t, err, models.ErrResolution)

	_, err = r.Resolve("")
	assert.ErrorIs(t, err, models.ErrResolution)
}

func TestResolveWithoutConfig(t *testing.T) {
	r := NewResolver(t.TempDir(), nil)
	r.MustRegister(Definition{Name: "Bare", Factory: nopFactory})

	_, err := r.Resolve("Bare")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestResolveConfigFileWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sma-cross", "sma-cross.config.yaml"), `
detector:
  sysname: FromFile
  is_active: true
  symbols:
    - name: BTCUSDT
      quantity: 3
  intervals: [1m, 5m]
`)
	r := NewResolver(dir, nil)
	r.MustRegister(Definition{
		Name:    "SmaCross",
		Factory: nopFactory,
		Config: func() (models.DetectorConfig, error) {
			return models.DetectorConfig{Sysname: "Compiled"}, nil
		},
	})

	res, err := r.Resolve("SmaCross")
	require.NoError(t, err)
	assert.Equal(t, "FromFile", res.Config.Sysname)
	assert.True(t, res.Config.IsActive)
	assert.Equal(t, []models.Timeframe{models.TF1m, models.TF5m}, res.Config.Intervals)
	assert.Equal(t, 3.0, res.Config.Symbols[0].Quantity)
	// defaults fill what the file leaves out
	assert.Equal(t, "USDT", res.Config.Currency)
	assert.Equal(t, 10.0, res.Config.TradeSettings.MaxPositionSizePercent)
	assert.Contains(t, res.ConfigPath, "sma-cross.config.yaml")
}

func TestResolveFlatConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "breakout.config.yml"), "sysname: Flat\ntrade_settings:\n  max_position_size_percent: 25\n")
	r := NewResolver(dir, nil)
	r.MustRegister(Definition{Name: "Breakout", Factory: nopFactory})

	res, err := r.Resolve("Breakout")
	require.NoError(t, err)
	assert.Equal(t, "Flat", res.Config.Sysname)
	assert.Equal(t, 25.0, res.Config.TradeSettings.MaxPositionSizePercent)
}

func TestResolveBrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Broken.config.yaml"), "sysname: [unterminated\n")
	r := NewResolver(dir, nil)
	r.MustRegister(Definition{Name: "Broken", Factory: nopFactory})

	_, err := r.Resolve("Broken")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewResolver("", nil)
	require.NoError(t, r.Register(Definition{Name: "A", Factory: nopFactory}))
	assert.Error(t, r.Register(Definition{Name: "A", Factory: nopFactory}))
	assert.Error(t, r.Register(Definition{Name: "B"}))
	assert.Equal(t, []string{"A"}, r.Names())
}
