package models

import "fmt"

// ItemResult is the outcome of indexing one question of a batch.
type ItemResult struct {
	Question string
	Err      error
}

// OK reports whether the item was fully indexed.
func (r ItemResult) OK() bool { return r.Err == nil }

// Message formats the failure for the batch summary.
func (r ItemResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to index \"%s\": %s", r.Question, r.Err.Error())
}

// IndexResult summarizes a batch: successes are counted, failures listed in input order.
type IndexResult struct {
	IndexedCount int      `json:"indexedCount"`
	Errors       []string `json:"errors"`
}

// Summarize folds per-item results, in order, into an IndexResult.
func Summarize(items []ItemResult) *IndexResult {
	res := &IndexResult{Errors: []string{}}
	for _, it := range items {
		if it.OK() {
			res.IndexedCount++
			continue
		}
		res.Errors = append(res.Errors, it.Message())
	}
	return res
}
