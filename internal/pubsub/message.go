package pubsub

import "strings"

// SubscriptionMessage is one decoded delivery unit returned from a poll.
type SubscriptionMessage struct {
	SubscriptionId SubscriptionId
	Channel        string
	Body           []byte
	Timestamp      uint64
}

// messageHeap orders poll output: ascending subscription id, then ascending
// channel, then descending timestamp. The newest message per (subscriber,
// channel) pair surfaces first; consumers wanting FIFO within a channel
// re-sort the returned batch by ascending timestamp.
type messageHeap []SubscriptionMessage

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if c := h[i].SubscriptionId.Compare(h[j].SubscriptionId); c != 0 {
		return c < 0
	}
	if c := strings.Compare(h[i].Channel, h[j].Channel); c != 0 {
		return c < 0
	}
	return h[i].Timestamp > h[j].Timestamp
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(SubscriptionMessage))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}
