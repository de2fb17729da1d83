package document

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Projection is a field selection over JSON bodies. A spec of the form
// {"a":1,"_id":0} keeps only the listed inclusion fields; a spec with only
// zero/false values removes the listed fields and keeps the rest.
type Projection struct {
	include   []string
	exclude   []string
	inclusive bool
}

// NewProjection parses a projection document.
func NewProjection(spec []byte) (*Projection, error) {
	if !gjson.ValidBytes(spec) {
		return nil, fmt.Errorf("%w: invalid projection", ErrInvalidDocument)
	}
	parsed := gjson.ParseBytes(ownedCopy(spec))
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: projection must be an object", ErrInvalidDocument)
	}

	p := &Projection{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		if truthy(value) {
			p.include = append(p.include, key.String())
		} else {
			p.exclude = append(p.exclude, key.String())
		}
		return true
	})
	p.inclusive = len(p.include) > 0
	return p, nil
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	}
	return false
}

// Transform applies the projection to body and returns the projected
// document. The input body is never modified.
func (p *Projection) Transform(body []byte) []byte {
	if p.inclusive {
		out := []byte("{}")
		for _, path := range p.include {
			got := gjson.GetBytes(body, path)
			if !got.Exists() {
				continue
			}
			set, err := sjson.SetRawBytes(out, path, []byte(got.Raw))
			if err != nil {
				continue
			}
			out = set
		}
		return out
	}

	out := ownedCopy(body)
	for _, path := range p.exclude {
		del, err := sjson.DeleteBytes(out, path)
		if err != nil {
			continue
		}
		out = del
	}
	return out
}
