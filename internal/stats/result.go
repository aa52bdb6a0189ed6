package stats

import (
	"fmt"
	"sort"
)

// Order selects how buckets are sorted.
type Order string

const (
	OrderCount Order = "count"
	OrderValue Order = "value"
)

// ParseOrder accepts "", "count" and "value"; "" means count.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", OrderCount:
		return OrderCount, nil
	case OrderValue:
		return OrderValue, nil
	}
	return "", fmt.Errorf("unknown order %q", s)
}

type Bucket struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// OneDimensionalResult holds the tallies of one field. Total counts every
// collected issue; Irrelevant and NoValue are part of Total, while an issue
// with several values adds to several Counts.
type OneDimensionalResult struct {
	Field      string           `json:"field"`
	Total      int64            `json:"total"`
	Irrelevant int64            `json:"irrelevant"`
	NoValue    int64            `json:"no_value"`
	Counts     map[string]int64 `json:"counts"`
}

// Merge adds other into r. Both must be for the same field.
func (r *OneDimensionalResult) Merge(other OneDimensionalResult) {
	if r.Counts == nil {
		r.Counts = make(map[string]int64, len(other.Counts))
	}
	if r.Field == "" {
		r.Field = other.Field
	}
	r.Total += other.Total
	r.Irrelevant += other.Irrelevant
	r.NoValue += other.NoValue
	for v, n := range other.Counts {
		r.Counts[v] += n
	}
}

func (r OneDimensionalResult) Buckets(order Order) []Bucket {
	return sortedBuckets(r.Counts, order)
}

// TwoDimensionalResult is a cross-tabulation of two fields. XIrrelevant is
// keyed by y value and counts issues whose x field is irrelevant; YIrrelevant
// is the mirror image.
type TwoDimensionalResult struct {
	XField         string                      `json:"x_field"`
	YField         string                      `json:"y_field"`
	Total          int64                       `json:"total"`
	BothIrrelevant int64                       `json:"both_irrelevant"`
	Cells          map[string]map[string]int64 `json:"cells"`
	XTotals        map[string]int64            `json:"x_totals"`
	YTotals        map[string]int64            `json:"y_totals"`
	XIrrelevant    map[string]int64            `json:"x_irrelevant"`
	YIrrelevant    map[string]int64            `json:"y_irrelevant"`
}

func NewTwoDimensionalResult(xField, yField string) TwoDimensionalResult {
	return TwoDimensionalResult{
		XField:      xField,
		YField:      yField,
		Cells:       make(map[string]map[string]int64),
		XTotals:     make(map[string]int64),
		YTotals:     make(map[string]int64),
		XIrrelevant: make(map[string]int64),
		YIrrelevant: make(map[string]int64),
	}
}

// Cell returns the number of issues with value x on the x axis and y on the
// y axis.
func (r TwoDimensionalResult) Cell(x, y string) int64 {
	return r.Cells[x][y]
}

func (r *TwoDimensionalResult) Merge(other TwoDimensionalResult) {
	if r.Cells == nil {
		fresh := NewTwoDimensionalResult(other.XField, other.YField)
		fresh.Total, fresh.BothIrrelevant = r.Total, r.BothIrrelevant
		*r = fresh
	}
	r.Total += other.Total
	r.BothIrrelevant += other.BothIrrelevant
	for x, row := range other.Cells {
		dst := r.Cells[x]
		if dst == nil {
			dst = make(map[string]int64, len(row))
			r.Cells[x] = dst
		}
		for y, n := range row {
			dst[y] += n
		}
	}
	addCounts(r.XTotals, other.XTotals)
	addCounts(r.YTotals, other.YTotals)
	addCounts(r.XIrrelevant, other.XIrrelevant)
	addCounts(r.YIrrelevant, other.YIrrelevant)
}

func (r TwoDimensionalResult) XBuckets(order Order) []Bucket {
	return sortedBuckets(r.XTotals, order)
}

func (r TwoDimensionalResult) YBuckets(order Order) []Bucket {
	return sortedBuckets(r.YTotals, order)
}

func addCounts(dst, src map[string]int64) {
	for k, n := range src {
		dst[k] += n
	}
}

// sortedBuckets orders by descending count (ties by value) or by value. The
// NoValue bucket always sorts last.
func sortedBuckets(counts map[string]int64, order Order) []Bucket {
	buckets := make([]Bucket, 0, len(counts))
	for v, n := range counts {
		buckets = append(buckets, Bucket{Value: v, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if (a.Value == NoValue) != (b.Value == NoValue) {
			return b.Value == NoValue
		}
		if order != OrderValue && a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Value < b.Value
	})
	return buckets
}
