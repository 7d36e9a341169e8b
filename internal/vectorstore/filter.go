package vectorstore

import "github.com/hyperjump/shiryo/internal/models"

// Filter is a payload filter. A point matches when every Must condition holds and, if
// Should is non-empty, at least one Should condition holds.
type Filter struct {
	Must   []Condition
	Should []Condition
}

// Condition is either an exact match of a payload key or a nested filter.
type Condition struct {
	Key    string
	Value  any
	Filter *Filter
}

// Eq matches points whose payload key equals value.
func Eq(key string, value any) Condition {
	return Condition{Key: key, Value: value}
}

// Nested wraps a filter as a condition.
func Nested(f *Filter) Condition {
	return Condition{Filter: f}
}

// Visible returns the filter for points the owner may see: its own points and public ones.
// An empty owner returns nil, which matches everything.
func Visible(owner string) *Filter {
	if owner == "" {
		return nil
	}
	return &Filter{Should: []Condition{
		Eq(models.FieldOwner, owner),
		Eq(models.FieldIsPublic, true),
	}}
}

// Document returns the filter for every point of (filename, owner).
func Document(filename, owner string) *Filter {
	return &Filter{Must: []Condition{
		Eq(models.FieldFilename, filename),
		Eq(models.FieldOwner, owner),
	}}
}

// And combines filters so that all of them must hold. Nil filters are skipped.
func And(filters ...*Filter) *Filter {
	var out Filter
	for _, f := range filters {
		if f == nil {
			continue
		}
		out.Must = append(out.Must, Nested(f))
	}
	if len(out.Must) == 0 {
		return nil
	}
	if len(out.Must) == 1 {
		return out.Must[0].Filter
	}
	return &out
}

// Match evaluates the filter against a payload. A nil filter matches.
func (f *Filter) Match(c *models.Chunk) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Must {
		if !cond.match(c) {
			return false
		}
	}
	if len(f.Should) == 0 {
		return true
	}
	for _, cond := range f.Should {
		if cond.match(c) {
			return true
		}
	}
	return false
}

func (c Condition) match(chunk *models.Chunk) bool {
	if c.Filter != nil {
		return c.Filter.Match(chunk)
	}
	v, ok := chunk.Field(c.Key)
	if !ok {
		return false
	}
	return equalValue(v, c.Value)
}

func equalValue(a, b any) bool {
	ai, aok := asInt64(a)
	bi, bok := asInt64(b)
	if aok || bok {
		return aok && bok && ai == bi
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
