// Package document applies subscriber-supplied predicates and field
// selections to opaque JSON document bodies. Both operations are pure with
// respect to the body they receive.
package document

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidDocument reports a filter or projection spec that is not a JSON
// object.
var ErrInvalidDocument = errors.New("document: not a JSON object")

type fieldMatch struct {
	path string
	want gjson.Result
}

// Matcher is an equality predicate over fields of a JSON body. A body
// matches when every filter field exists and is equal; fields are gjson
// paths, so nested documents can be addressed with dots.
type Matcher struct {
	fields []fieldMatch
}

// NewMatcher parses a filter document.
func NewMatcher(filter []byte) (*Matcher, error) {
	if !gjson.ValidBytes(filter) {
		return nil, fmt.Errorf("%w: invalid filter", ErrInvalidDocument)
	}
	parsed := gjson.ParseBytes(ownedCopy(filter))
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: filter must be an object", ErrInvalidDocument)
	}

	m := &Matcher{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		m.fields = append(m.fields, fieldMatch{path: key.String(), want: value})
		return true
	})
	return m, nil
}

// Matches reports whether body satisfies the filter.
func (m *Matcher) Matches(body []byte) bool {
	for _, f := range m.fields {
		got := gjson.GetBytes(body, f.path)
		if !got.Exists() || !resultsEqual(got, f.want) {
			return false
		}
	}
	return true
}

func resultsEqual(a, b gjson.Result) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case gjson.Number:
		return a.Num == b.Num
	case gjson.String:
		return a.Str == b.Str
	default:
		// true/false/null compare by type; objects and arrays by raw text
		return a.Raw == b.Raw
	}
}

// ownedCopy detaches parsed results from the caller's buffer.
func ownedCopy(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
