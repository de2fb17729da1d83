package pubsub

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionIdUnique(t *testing.T) {
	seen := make(map[SubscriptionId]struct{})
	for i := 0; i < 10000; i++ {
		id := NewSubscriptionId()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s after %d generations", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestSubscriptionIdOrdering(t *testing.T) {
	a := SubscriptionId{0, 0, 0, 1}
	b := SubscriptionId{0, 0, 0, 2}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
}

func TestSubscriptionIdOrderIsTotal(t *testing.T) {
	ids := make([]SubscriptionId, 100)
	for i := range ids {
		ids[i] = NewSubscriptionId()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	for i := 1; i < len(ids); i++ {
		assert.True(t, ids[i-1].Less(ids[i]), "ids must be distinct and sorted")
	}
}

func TestSubscriptionIdHexRoundTrip(t *testing.T) {
	id := NewSubscriptionId()
	h := id.Hex()
	require.Len(t, h, 24)

	parsed, err := ParseSubscriptionId(h)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, h, id.String())
}

func TestParseSubscriptionIdRejectsMalformed(t *testing.T) {
	_, err := ParseSubscriptionId("short")
	assert.Error(t, err)

	_, err = ParseSubscriptionId("zzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}
