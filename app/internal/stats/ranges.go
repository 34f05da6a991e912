package stats

import (
	"math"
	"time"
)

// Range is one of the fixed lookback windows accepted by queries
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range90d Range = "90d"
)

var rangeHours = map[Range]int{
	Range24h: 24,
	Range7d:  24 * 7,
	Range30d: 24 * 30,
	Range90d: 24 * 90,
}

// ParseRange normalises a query value. Anything unrecognised means 24h.
func ParseRange(s string) Range {
	r := Range(s)
	if _, ok := rangeHours[r]; ok {
		return r
	}
	return Range24h
}

// Hours is the lookback length in hours
func (r Range) Hours() int {
	if h, ok := rangeHours[r]; ok {
		return h
	}
	return 24
}

// Lookback is Hours as a duration
func (r Range) Lookback() time.Duration {
	return time.Duration(r.Hours()) * time.Hour
}

// Round1 rounds half-up to one decimal place
func Round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
