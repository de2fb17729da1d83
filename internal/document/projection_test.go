package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionInclusive(t *testing.T) {
	p, err := NewProjection([]byte(`{"a":1,"_id":0}`))
	require.NoError(t, err)

	out := p.Transform([]byte(`{"a":7,"b":8,"_id":"x"}`))
	assert.JSONEq(t, `{"a":7}`, string(out))
}

func TestProjectionExclusive(t *testing.T) {
	p, err := NewProjection([]byte(`{"b":0}`))
	require.NoError(t, err)

	out := p.Transform([]byte(`{"a":7,"b":8}`))
	assert.JSONEq(t, `{"a":7}`, string(out))
}

func TestProjectionMissingIncludeField(t *testing.T) {
	p, err := NewProjection([]byte(`{"a":1,"z":1}`))
	require.NoError(t, err)

	out := p.Transform([]byte(`{"a":7,"b":8}`))
	assert.JSONEq(t, `{"a":7}`, string(out))
}

func TestProjectionPreservesNestedValues(t *testing.T) {
	p, err := NewProjection([]byte(`{"a":1}`))
	require.NoError(t, err)

	out := p.Transform([]byte(`{"a":{"x":[1,2]},"b":8}`))
	assert.JSONEq(t, `{"a":{"x":[1,2]}}`, string(out))
}

func TestProjectionIdempotentOnOwnOutput(t *testing.T) {
	p, err := NewProjection([]byte(`{"a":1}`))
	require.NoError(t, err)

	once := p.Transform([]byte(`{"a":7,"b":8}`))
	twice := p.Transform(once)
	assert.JSONEq(t, string(once), string(twice))
}

func TestProjectionDoesNotMutateInput(t *testing.T) {
	p, err := NewProjection([]byte(`{"b":0}`))
	require.NoError(t, err)

	body := []byte(`{"a":7,"b":8}`)
	_ = p.Transform(body)
	assert.JSONEq(t, `{"a":7,"b":8}`, string(body))
}

func TestNewProjectionRejectsBadSpecs(t *testing.T) {
	_, err := NewProjection([]byte(`"a"`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = NewProjection([]byte(`{"a"`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
