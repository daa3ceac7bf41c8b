package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
	"Detector/pkg/metrics"
)

type recorder struct {
	Base
	calls *[]string
	fail  error
	panic bool
}

func newRecorder(name string, calls *[]string) *recorder {
	return &recorder{Base: Base{PluginMeta: models.PluginMeta{Name: name, GUID: "guid-" + name}}, calls: calls}
}

func (r *recorder) OnTrade(_ context.Context, pc *Context, trade models.Trade) error {
	*r.calls = append(*r.calls, r.Name()+":"+trade.Symbol.Name)
	pc.Values[r.Name()] = trade.Price
	if r.panic {
		panic("boom")
	}
	return r.fail
}

func TestAsyncReduceOrderAndIsolation(t *testing.T) {
	var calls []string
	d := NewDriver(logger.Nop(), metrics.Nop{})

	a := newRecorder("a", &calls)
	b := newRecorder("b", &calls)
	b.fail = errors.New("bad plugin")
	c := newRecorder("c", &calls)
	c.panic = true
	e := newRecorder("e", &calls)
	d.Register(a, b, c, e)

	pc := NewContext(nil, nil, d.Find)
	err := d.AsyncReduce(context.Background(), HookTrade, pc, models.Trade{Symbol: models.Symbol{Name: "BTC"}, Price: 10})

	assert.Equal(t, []string{"a:BTC", "b:BTC", "c:BTC", "e:BTC"}, calls)
	require.Error(t, err)
	var herr *HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "b", herr.Plugin)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.Len(t, pc.Values, 4)
}

func TestAsyncReduceSkipsPluginsWithoutCapability(t *testing.T) {
	d := NewDriver(logger.Nop(), nil)
	d.Register(bare{})

	err := d.AsyncReduce(context.Background(), HookTrade, nil, models.Trade{})
	assert.NoError(t, err)
}

type bare struct{}

func (bare) Name() string            { return "bare" }
func (bare) Meta() models.PluginMeta { return models.PluginMeta{} }

func TestAsyncReduceRejectsWrongArgument(t *testing.T) {
	var calls []string
	d := NewDriver(logger.Nop(), nil)
	d.Register(newRecorder("a", &calls))

	err := d.AsyncReduce(context.Background(), HookTrade, nil, "not a trade")
	assert.Error(t, err)
	assert.Empty(t, calls)
}

func TestRegisterReplacesInPlace(t *testing.T) {
	var calls []string
	d := NewDriver(logger.Nop(), nil)
	d.Register(newRecorder("a", &calls), newRecorder("b", &calls))

	fresh := newRecorder("a", &calls)
	d.Register(fresh)

	plugins := d.Plugins()
	require.Len(t, plugins, 2)
	assert.Same(t, fresh, plugins[0])

	found, ok := d.Find("guid-b")
	require.True(t, ok)
	assert.Equal(t, "b", found.Name())

	assert.True(t, d.Remove("a"))
	assert.Len(t, d.Plugins(), 1)
}
