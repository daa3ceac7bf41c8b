package detector

import (
	"sort"
	"strings"
	"sync"
	"time"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
)

// CandleValueStatus tells whether a trade at current falls past the candle opened at last.
// When it does, candleMoment is the nominal open time of the next candle.
func CandleValueStatus(current, last time.Time, tf models.Timeframe) (isNew bool, candleMoment time.Time) {
	if !tf.Add(current, -1).Before(last.UTC()) {
		return true, tf.Add(last, 1)
	}
	return false, time.Time{}
}

// CandleChange is the effect of one trade on one (symbol, interval) series.
type CandleChange struct {
	Status models.CandleStatus
	Candle models.Candle
	// Closed is the candle finished by a boundary crossing. Nil for updates and for the first candle of a series.
	Closed *models.Candle
}

// CandleAggregator keeps symbol -> timeframe -> candles, most recent first.
type CandleAggregator struct {
	mu     sync.RWMutex
	series map[string]map[models.Timeframe][]models.Candle
	window int
	// ready is the last logged readiness state; nil until first check.
	ready *bool
	log   *logger.Logger
}

func NewCandleAggregator(window int, log *logger.Logger) *CandleAggregator {
	if window <= 0 {
		window = 500
	}
	return &CandleAggregator{
		series: make(map[string]map[models.Timeframe][]models.Candle),
		window: window,
		log:    log,
	}
}

// Init resets the index to an empty sequence for every (symbol, interval).
func (a *CandleAggregator) Init(symbols []models.Symbol, intervals []models.Timeframe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.series = make(map[string]map[models.Timeframe][]models.Candle, len(symbols))
	for _, s := range symbols {
		byTF := make(map[models.Timeframe][]models.Candle, len(intervals))
		for _, tf := range intervals {
			byTF[tf] = []models.Candle{}
		}
		a.series[s.Name] = byTF
	}
}

// Replace swaps the whole index. Each series is sorted most recent first,
// duplicate open times keep the first occurrence and the window limit applies.
func (a *CandleAggregator) Replace(index map[string]map[models.Timeframe][]models.Candle) {
	next := make(map[string]map[models.Timeframe][]models.Candle, len(index))
	for symbol, byTF := range index {
		next[symbol] = make(map[models.Timeframe][]models.Candle, len(byTF))
		for tf, candles := range byTF {
			next[symbol][tf] = a.normalize(candles)
		}
	}
	a.mu.Lock()
	a.series = next
	a.mu.Unlock()
}

func (a *CandleAggregator) normalize(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	seen := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if _, dup := seen[c.Time]; dup {
			continue
		}
		seen[c.Time] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	if len(out) > a.window {
		out = out[:a.window]
	}
	return out
}

// Series returns a copy of one series. desc=true keeps the native most-recent-first
// order, desc=false returns it oldest first.
func (a *CandleAggregator) Series(symbol string, tf models.Timeframe, desc bool) []models.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	src := a.series[symbol][tf]
	out := make([]models.Candle, len(src))
	if desc {
		copy(out, src)
		return out
	}
	for i, c := range src {
		out[len(src)-1-i] = c
	}
	return out
}

// Head returns the currently open candle of a series.
func (a *CandleAggregator) Head(symbol string, tf models.Timeframe) (models.Candle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.series[symbol][tf]
	if len(s) == 0 {
		return models.Candle{}, false
	}
	return s[0], true
}

// EnsureHistoryReady reports whether every (symbol, interval) has at least one candle.
// It logs only when the answer differs from the previous call.
func (a *CandleAggregator) EnsureHistoryReady(symbols []models.Symbol, intervals []models.Timeframe) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	ready, reason := true, ""
outer:
	for _, s := range symbols {
		byTF, ok := a.series[s.Name]
		if !ok {
			ready, reason = false, "no candles for "+s.Name
			break
		}
		for _, tf := range intervals {
			if len(byTF[tf]) == 0 {
				ready, reason = false, "no candles for "+s.Name+" @ "+string(tf)
				break outer
			}
		}
	}

	if a.ready != nil && *a.ready == ready {
		return ready
	}
	a.ready = &ready
	if !ready {
		a.log.Warn("candle history not ready", logger.String("reason", reason))
		return false
	}
	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = s.Name
	}
	tfs := make([]string, len(intervals))
	for i, tf := range intervals {
		tfs[i] = string(tf)
	}
	a.log.Info("candle history ready",
		logger.String("symbols", strings.Join(names, ",")),
		logger.String("intervals", strings.Join(tfs, ",")),
	)
	return true
}

// CloseCandle overwrites the head of the matching series when the open times match.
func (a *CandleAggregator) CloseCandle(c models.Candle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.series[c.Symbol.Name][c.Interval]
	if len(s) == 0 || s[0].Time != c.Time {
		return false
	}
	s[0] = c
	return true
}

// UpdateByTrade folds a trade into every configured interval of its symbol.
// Trades older than the open candle are ignored. When a trade skips whole
// buckets, the gap is filled with flat candles so adjacent open times stay one
// timeframe apart.
func (a *CandleAggregator) UpdateByTrade(trade models.Trade, intervals []models.Timeframe) []CandleChange {
	a.mu.Lock()
	defer a.mu.Unlock()

	byTF, ok := a.series[trade.Symbol.Name]
	if !ok {
		return nil
	}
	at := time.UnixMilli(trade.Time).UTC()

	changes := make([]CandleChange, 0, len(intervals))
	for _, tf := range intervals {
		s, tracked := byTF[tf]
		if !tracked {
			continue
		}
		if len(s) == 0 {
			c := newCandle(trade, tf, tf.Truncate(at))
			byTF[tf] = []models.Candle{c}
			changes = append(changes, CandleChange{Status: models.CandleCreate, Candle: c})
			continue
		}

		head := s[0]
		if trade.Time < head.Time {
			continue
		}
		isNew, moment := CandleValueStatus(at, head.OpenTime(), tf)
		if !isNew {
			applyTrade(&s[0], trade)
			changes = append(changes, CandleChange{Status: models.CandleUpdate, Candle: s[0]})
			continue
		}

		closed := head
		fresh := make([]models.Candle, 0, 1)
		for {
			next, _ := CandleValueStatus(at, moment, tf)
			if !next {
				break
			}
			fresh = append(fresh, flatCandle(closed, tf, moment))
			moment = tf.Add(moment, 1)
		}
		open := newCandle(trade, tf, moment)
		open.Open = closed.Close
		open.High = max(open.High, closed.Close)
		open.Low = min(open.Low, closed.Close)

		prepend := make([]models.Candle, 0, len(fresh)+1+len(s))
		prepend = append(prepend, open)
		for i := len(fresh) - 1; i >= 0; i-- {
			prepend = append(prepend, fresh[i])
		}
		prepend = append(prepend, s...)
		if len(prepend) > a.window {
			prepend = prepend[:a.window]
		}
		byTF[tf] = prepend
		changes = append(changes, CandleChange{Status: models.CandleCreate, Candle: open, Closed: &closed})
	}
	return changes
}

func newCandle(trade models.Trade, tf models.Timeframe, openTime time.Time) models.Candle {
	return models.Candle{
		Symbol:   trade.Symbol,
		Interval: tf,
		Time:     openTime.UnixMilli(),
		Open:     trade.Price,
		High:     trade.Price,
		Low:      trade.Price,
		Close:    trade.Price,
		Volume:   trade.Volume,
		Trades:   1,
	}
}

func flatCandle(prev models.Candle, tf models.Timeframe, openTime time.Time) models.Candle {
	return models.Candle{
		Symbol:   prev.Symbol,
		Interval: tf,
		Time:     openTime.UnixMilli(),
		Open:     prev.Close,
		High:     prev.Close,
		Low:      prev.Close,
		Close:    prev.Close,
	}
}

func applyTrade(c *models.Candle, trade models.Trade) {
	c.High = max(c.High, trade.Price)
	c.Low = min(c.Low, trade.Price)
	c.Close = trade.Price
	c.Volume += trade.Volume
	c.Trades++
}
