package analytics

import (
	"fmt"
	"math"
	"time"
)

// Granularity is the width of a time bucket
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// BucketKey formats t as the key of its bucket. Keys are computed in UTC so
// two timestamps in the same calendar bucket always share a key regardless of
// time of day or location. Weeks are ISO weeks ("2006-W01"); an unknown
// granularity buckets by day.
func BucketKey(t time.Time, g Granularity) string {
	t = t.UTC()
	switch g {
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Month:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// GrowthPoint is the number of rows that fell in one bucket
type GrowthPoint struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// SeriesPoint is the sum of a value over one bucket
type SeriesPoint struct {
	Bucket string  `json:"bucket"`
	Value  float64 `json:"value"`
}

// bucketIndex keeps buckets in first-encountered order
type bucketIndex struct {
	order []string
	pos   map[string]int
}

func newBucketIndex() *bucketIndex {
	return &bucketIndex{pos: make(map[string]int)}
}

func (b *bucketIndex) slot(key string) int {
	if i, ok := b.pos[key]; ok {
		return i
	}
	b.pos[key] = len(b.order)
	b.order = append(b.order, key)
	return len(b.order) - 1
}

// GrowthSeries counts timestamps per bucket. Buckets are returned in the
// order they are first encountered, so callers wanting chronological order
// pass sorted input. Zero timestamps are skipped.
func GrowthSeries(times []time.Time, g Granularity) []GrowthPoint {
	idx := newBucketIndex()
	var points []GrowthPoint
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		i := idx.slot(BucketKey(t, g))
		if i == len(points) {
			points = append(points, GrowthPoint{Bucket: idx.order[i]})
		}
		points[i].Count++
	}
	return points
}

// SumSeries sums value(row) per bucket of at(row), in first-encountered
// order. Rows with a zero timestamp or a NaN value are skipped, and buckets
// whose sum is zero are omitted rather than zero-filled.
func SumSeries[R any](rows []R, g Granularity, at func(R) time.Time, value func(R) float64) []SeriesPoint {
	idx := newBucketIndex()
	var sums []float64
	for _, row := range rows {
		t := at(row)
		v := value(row)
		if t.IsZero() || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		i := idx.slot(BucketKey(t, g))
		if i == len(sums) {
			sums = append(sums, 0)
		}
		sums[i] += v
	}

	points := make([]SeriesPoint, 0, len(sums))
	for i, sum := range sums {
		if sum == 0 {
			continue
		}
		points = append(points, SeriesPoint{Bucket: idx.order[i], Value: sum})
	}
	return points
}

// RevenueSeries sums payment amounts per month
func RevenueSeries(payments []PaymentRow) []SeriesPoint {
	return SumSeries(payments, Month,
		func(p PaymentRow) time.Time { return p.CreatedAt },
		func(p PaymentRow) float64 { return p.Amount },
	)
}
