package pubsub

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// SubscriptionId is the opaque 96-bit handle returned to subscribers and
// used as the registry key. Ids are unique within a process lifetime and
// totally ordered: 4 bytes of creation time (seconds, big-endian), 5
// process-unique random bytes, and a 3-byte counter.
type SubscriptionId [12]byte

var (
	idProcessUnique [5]byte
	idCounter       atomic.Uint32
)

func init() {
	if _, err := rand.Read(idProcessUnique[:]); err != nil {
		panic(fmt.Sprintf("pubsub: cannot seed subscription ids: %v", err))
	}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("pubsub: cannot seed subscription ids: %v", err))
	}
	idCounter.Store(binary.BigEndian.Uint32(seed[:]))
}

// NewSubscriptionId generates a fresh id.
func NewSubscriptionId() SubscriptionId {
	var id SubscriptionId
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], idProcessUnique[:])
	c := idCounter.Add(1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return id
}

// Compare returns -1, 0, or 1 ordering ids lexicographically by their
// 12-byte form.
func (id SubscriptionId) Compare(other SubscriptionId) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id sorts before other.
func (id SubscriptionId) Less(other SubscriptionId) bool {
	return id.Compare(other) < 0
}

// Hex returns the 24-character hex form.
func (id SubscriptionId) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id SubscriptionId) String() string {
	return id.Hex()
}

// ParseSubscriptionId decodes the hex form produced by Hex.
func ParseSubscriptionId(s string) (SubscriptionId, error) {
	var id SubscriptionId
	if len(s) != 24 {
		return id, fmt.Errorf("pubsub: invalid subscription id %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("pubsub: invalid subscription id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}
