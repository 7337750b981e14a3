// Package temporal implements the numeric semantics of the trend
// operators against one signal's ordered observations. Every operator is
// a pure function of the point list and the reference time; a nil result
// means "insufficient data", never zero.
package temporal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/caretide/scenario"
)

// Windowed reports whether the named operator filters to a lookback
// window before computing. Pointwise operators (last, exists, missing)
// see all available history.
func Windowed(name string) bool {
	switch name {
	case "last", "exists", "missing":
		return false
	}
	return true
}

// Apply computes the named operator. points must be sorted by ascending
// timestamp. windowSeconds is ignored by pointwise operators; percentile
// is only read by the percentile operator.
func Apply(name string, points []scenario.DataPoint, windowSeconds int64, percentile float64, ref time.Time) (*float64, error) {
	switch name {
	case "delta":
		return delta(filterWindow(points, windowSeconds, ref)), nil
	case "slope":
		return slope(filterWindow(points, windowSeconds, ref)), nil
	case "sma":
		return sma(filterWindow(points, windowSeconds, ref)), nil
	case "ema":
		return ema(filterWindow(points, windowSeconds, ref)), nil
	case "min":
		return minVal(filterWindow(points, windowSeconds, ref)), nil
	case "max":
		return maxVal(filterWindow(points, windowSeconds, ref)), nil
	case "count":
		n := float64(len(filterWindow(points, windowSeconds, ref)))
		return &n, nil
	case "first":
		return first(filterWindow(points, windowSeconds, ref)), nil
	case "std", "stddev":
		return std(filterWindow(points, windowSeconds, ref)), nil
	case "percentile":
		return pctl(filterWindow(points, windowSeconds, ref), percentile), nil
	case "last":
		return last(points), nil
	case "exists":
		return encodeBool(hasValue(points)), nil
	case "missing":
		return encodeBool(!hasValue(points)), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", name)
	}
}

// filterWindow keeps points inside [ref-window, ref] and discards null
// values. Input order is preserved.
func filterWindow(points []scenario.DataPoint, windowSeconds int64, ref time.Time) []scenario.DataPoint {
	start := ref.Add(-time.Duration(windowSeconds) * time.Second)
	var out []scenario.DataPoint
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		if p.Timestamp.Before(start) || p.Timestamp.After(ref) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func delta(pts []scenario.DataPoint) *float64 {
	if len(pts) < 2 {
		return nil
	}
	v := *pts[len(pts)-1].Value - *pts[0].Value
	return &v
}

// slope is the ordinary least-squares slope of value against elapsed
// seconds from the earliest point in the window.
func slope(pts []scenario.DataPoint) *float64 {
	if len(pts) < 2 {
		return nil
	}
	t0 := pts[0].Timestamp
	var sumX, sumY, sumXY, sumX2 float64
	n := float64(len(pts))
	for _, p := range pts {
		x := p.Timestamp.Sub(t0).Seconds()
		y := *p.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if math.Abs(denom) < 1e-10 {
		// All points share one timestamp; a line is undefined.
		zero := 0.0
		return &zero
	}
	v := (n*sumXY - sumX*sumY) / denom
	return &v
}

func sma(pts []scenario.DataPoint) *float64 {
	if len(pts) == 0 {
		return nil
	}
	var sum float64
	for _, p := range pts {
		sum += *p.Value
	}
	v := sum / float64(len(pts))
	return &v
}

// ema seeds with the earliest value and applies
// e[i] = alpha*v[i] + (1-alpha)*e[i-1] with alpha = 2/(n+1).
func ema(pts []scenario.DataPoint) *float64 {
	if len(pts) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(len(pts)) + 1.0)
	e := *pts[0].Value
	for _, p := range pts[1:] {
		e = alpha*(*p.Value) + (1-alpha)*e
	}
	return &e
}

func minVal(pts []scenario.DataPoint) *float64 {
	if len(pts) == 0 {
		return nil
	}
	v := *pts[0].Value
	for _, p := range pts[1:] {
		if *p.Value < v {
			v = *p.Value
		}
	}
	return &v
}

func maxVal(pts []scenario.DataPoint) *float64 {
	if len(pts) == 0 {
		return nil
	}
	v := *pts[0].Value
	for _, p := range pts[1:] {
		if *p.Value > v {
			v = *p.Value
		}
	}
	return &v
}

func first(pts []scenario.DataPoint) *float64 {
	if len(pts) == 0 {
		return nil
	}
	v := *pts[0].Value
	return &v
}

// std is the sample standard deviation (n-1 denominator).
func std(pts []scenario.DataPoint) *float64 {
	if len(pts) < 2 {
		return nil
	}
	var sum float64
	for _, p := range pts {
		sum += *p.Value
	}
	mean := sum / float64(len(pts))
	var sq float64
	for _, p := range pts {
		d := *p.Value - mean
		sq += d * d
	}
	v := math.Sqrt(sq / float64(len(pts)-1))
	return &v
}

// pctl computes the p-th percentile with linear interpolation between
// order statistics.
func pctl(pts []scenario.DataPoint, p float64) *float64 {
	if len(pts) == 0 {
		return nil
	}
	values := make([]float64, len(pts))
	for i, dp := range pts {
		values[i] = *dp.Value
	}
	sort.Float64s(values)
	if len(values) == 1 {
		return &values[0]
	}
	k := (p / 100.0) * float64(len(values)-1)
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return &values[int(k)]
	}
	v := values[int(f)]*(c-k) + values[int(c)]*(k-f)
	return &v
}

// last returns the most recent non-null value across all history.
func last(points []scenario.DataPoint) *float64 {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Value != nil {
			v := *points[i].Value
			return &v
		}
	}
	return nil
}

func hasValue(points []scenario.DataPoint) bool {
	for _, p := range points {
		if p.Value != nil {
			return true
		}
	}
	return false
}

// encodeBool maps a presence check onto the numeric domain so it can
// compose inside trend expressions.
func encodeBool(b bool) *float64 {
	v := 0.0
	if b {
		v = 1.0
	}
	return &v
}
