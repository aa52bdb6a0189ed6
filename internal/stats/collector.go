// Package stats tallies field values over the issues matching a search.
// Collectors are fed one document ID per hit and bucket each issue by
// whether the requested field is relevant for its project and issue type.
package stats

import (
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/visibility"
)

// NoValue is the bucket key for issues where a relevant field is empty.
const NoValue = ""

// DocReader resolves a hit to its stored document.
type DocReader interface {
	Doc(docID string) (index.StoredDoc, bool)
}

// HitCollector is called once per matching document.
type HitCollector interface {
	Collect(docID string)
}

// OneDimensionalCollector counts the values of a single field. It is not safe
// for concurrent use; create one per request (or per shard) and discard it.
type OneDimensionalCollector struct {
	field  string
	reader DocReader
	scope  *visibility.ScopeCache
	result OneDimensionalResult
}

func NewOneDimensionalCollector(field string, reader DocReader, checker visibility.Checker) *OneDimensionalCollector {
	return &OneDimensionalCollector{
		field:  field,
		reader: reader,
		scope:  visibility.NewScopeCache(checker),
		result: OneDimensionalResult{
			Field:  field,
			Counts: make(map[string]int64),
		},
	}
}

func (c *OneDimensionalCollector) Collect(docID string) {
	doc, ok := c.reader.Doc(docID)
	if !ok {
		return
	}
	c.result.Total++
	if !c.scope.Visible(c.field, doc.ProjectID, doc.IssueTypeID) {
		c.result.Irrelevant++
		return
	}
	values := issue.Distinct(doc.Values(c.field))
	if len(values) == 0 {
		c.result.NoValue++
		return
	}
	for _, v := range values {
		c.result.Counts[v]++
	}
}

func (c *OneDimensionalCollector) Result() OneDimensionalResult {
	return c.result
}

// ScopeStats reports how often the visibility memo answered from cache.
func (c *OneDimensionalCollector) ScopeStats() (hits, misses int) {
	return c.scope.Stats()
}

// TwoDimensionalCollector cross-tabulates two fields. Relevance is decided per
// axis; an empty relevant axis contributes the NoValue key.
type TwoDimensionalCollector struct {
	xField string
	yField string
	reader DocReader
	scope  *visibility.ScopeCache
	result TwoDimensionalResult
}

func NewTwoDimensionalCollector(xField, yField string, reader DocReader, checker visibility.Checker) *TwoDimensionalCollector {
	return &TwoDimensionalCollector{
		xField: xField,
		yField: yField,
		reader: reader,
		scope:  visibility.NewScopeCache(checker),
		result: NewTwoDimensionalResult(xField, yField),
	}
}

func (c *TwoDimensionalCollector) Collect(docID string) {
	doc, ok := c.reader.Doc(docID)
	if !ok {
		return
	}
	r := &c.result
	r.Total++

	xRelevant := c.scope.Visible(c.xField, doc.ProjectID, doc.IssueTypeID)
	yRelevant := c.scope.Visible(c.yField, doc.ProjectID, doc.IssueTypeID)

	switch {
	case !xRelevant && !yRelevant:
		r.BothIrrelevant++
	case !xRelevant:
		for _, y := range axisValues(doc, c.yField) {
			r.XIrrelevant[y]++
			r.YTotals[y]++
		}
	case !yRelevant:
		for _, x := range axisValues(doc, c.xField) {
			r.YIrrelevant[x]++
			r.XTotals[x]++
		}
	default:
		xs := axisValues(doc, c.xField)
		ys := axisValues(doc, c.yField)
		for _, x := range xs {
			r.XTotals[x]++
			row := r.Cells[x]
			if row == nil {
				row = make(map[string]int64, len(ys))
				r.Cells[x] = row
			}
			for _, y := range ys {
				row[y]++
			}
		}
		for _, y := range ys {
			r.YTotals[y]++
		}
	}
}

func (c *TwoDimensionalCollector) Result() TwoDimensionalResult {
	return c.result
}

func (c *TwoDimensionalCollector) ScopeStats() (hits, misses int) {
	return c.scope.Stats()
}

func axisValues(doc index.StoredDoc, field string) []string {
	values := issue.Distinct(doc.Values(field))
	if len(values) == 0 {
		return []string{NoValue}
	}
	return values
}
