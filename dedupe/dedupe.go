// Package dedupe collapses records that describe the same product.
//
// Two records are the same product when both name and link match.
package dedupe

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-catalog/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key is the identity of a record.
type Key struct {
	Name string
	Link string
}

// KeyOf returns the identity key of r.
func KeyOf(r *models.Record) Key {
	return Key{Name: r.Name, Link: r.Link}
}

// Records returns the first occurrence of every key in input order.
// The input slice is not modified; nil entries are dropped.
func Records(in []*models.Record) []*models.Record {
	seen := make(map[Key]struct{}, len(in))
	out := make([]*models.Record, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		key := KeyOf(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Filter is a streaming seen-set with bounded memory. It is exact as long
// as the number of distinct keys stays within its size; beyond that the
// least recently seen keys are forgotten.
type Filter struct {
	cache *lru.Cache[Key, struct{}]
}

// NewFilter builds a filter that remembers up to size keys.
func NewFilter(size int) (*Filter, error) {
	cache, err := lru.New[Key, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Filter{cache: cache}, nil
}

// Seen reports whether r's key was already seen, and remembers it if not.
// It is safe for concurrent use.
func (f *Filter) Seen(r *models.Record) bool {
	found, _ := f.cache.ContainsOrAdd(KeyOf(r), struct{}{})
	return found
}

// Len returns the number of remembered keys.
func (f *Filter) Len() int {
	return f.cache.Len()
}
