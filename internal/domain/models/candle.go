package models

import (
	"fmt"
	"time"
)

type Timeframe string

const (
	TF1m    Timeframe = "1m"
	TF3m    Timeframe = "3m"
	TF5m    Timeframe = "5m"
	TF15m   Timeframe = "15m"
	TF30m   Timeframe = "30m"
	TF1h    Timeframe = "1h"
	TF2h    Timeframe = "2h"
	TF4h    Timeframe = "4h"
	TFDay   Timeframe = "day"
	TFWeek  Timeframe = "week"
	TFMonth Timeframe = "month"
)

// Timeframes lists every supported bucket, shortest first.
var Timeframes = []Timeframe{TF1m, TF3m, TF5m, TF15m, TF30m, TF1h, TF2h, TF4h, TFDay, TFWeek, TFMonth}

// IsValid returns true if tf is a supported timeframe.
func (tf Timeframe) IsValid() bool {
	for _, v := range Timeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// ParseTimeframe converts a raw string into a supported timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Add moves t by n timeframe units. Calendar units (day, week, month) use calendar arithmetic in UTC.
func (tf Timeframe) Add(t time.Time, n int) time.Time {
	t = t.UTC()
	switch tf {
	case TF1m:
		return t.Add(time.Duration(n) * time.Minute)
	case TF3m:
		return t.Add(time.Duration(3*n) * time.Minute)
	case TF5m:
		return t.Add(time.Duration(5*n) * time.Minute)
	case TF15m:
		return t.Add(time.Duration(15*n) * time.Minute)
	case TF30m:
		return t.Add(time.Duration(30*n) * time.Minute)
	case TF1h:
		return t.Add(time.Duration(n) * time.Hour)
	case TF2h:
		return t.Add(time.Duration(2*n) * time.Hour)
	case TF4h:
		return t.Add(time.Duration(4*n) * time.Hour)
	case TFDay:
		return t.AddDate(0, 0, n)
	case TFWeek:
		return t.AddDate(0, 0, 7*n)
	case TFMonth:
		return t.AddDate(0, n, 0)
	}
	return t
}

// Truncate aligns t to the start of its bucket. Weeks start on Monday.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case TFDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case TFWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case TFMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(tf.Add(time.Unix(0, 0), 1).Sub(time.Unix(0, 0)))
}

// Candle is an OHLCV record. Time is the open time in unix milliseconds.
type Candle struct {
	Symbol   Symbol    `json:"symbol"`
	Interval Timeframe `json:"interval"`
	Time     int64     `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Trades   int       `json:"trades,omitempty"`
}

// OpenTime returns Time as a UTC time.Time.
func (c Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Time).UTC()
}

// CandleStatus is the outcome of feeding one trade into a candle series.
type CandleStatus string

const (
	CandleUpdate CandleStatus = "update"
	CandleCreate CandleStatus = "create"
)
