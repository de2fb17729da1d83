package pubsub

import (
	"container/heap"
	"errors"
	"time"

	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/metrics"
	"github.com/MerrukTechnology/DocStream/internal/socket"
	"github.com/MerrukTechnology/DocStream/internal/wire"
)

// pollSlice bounds a single wait in the poll primitive so an active poll
// comes up for air to notice unsubscribe requests.
const pollSlice = time.Second

// PollResult is the outcome of one Poll call.
type PollResult struct {
	// Messages is the drained batch in delivery order: ascending
	// subscription id, ascending channel, descending timestamp.
	Messages []SubscriptionMessage

	// Errors maps each failed subscription id to a human-readable
	// reason. A failed id contributes no messages beyond what was
	// drained before the failure.
	Errors map[SubscriptionId]string

	// Partial reports that the poll gave up at the max window with
	// nothing received; the caller should reissue the poll.
	Partial bool

	// Polled is the sum of the poll slices that expired with nothing
	// ready; the slice in which traffic arrived is not counted.
	Polled time.Duration
}

type pollEntry struct {
	id  SubscriptionId
	sub *subscription
}

// Poll long-polls the given subscriptions for up to timeout and drains
// whatever arrived. Timeouts longer than the max poll window (and negative
// timeouts) are clamped to it. Per-subscription failures land in the result
// error map without failing the call; the returned error is reserved for a
// disabled plane and a failed poll primitive.
func (p *Plane) Poll(ids []SubscriptionId, timeout time.Duration) (PollResult, error) {
	res := PollResult{Errors: make(map[SubscriptionId]string)}
	if !p.enabled.Load() {
		return res, ErrDisabled
	}

	// check out every valid subscription; invalid ids only contribute an
	// error entry
	seen := make(map[SubscriptionId]struct{}, len(ids))
	entries := make([]pollEntry, 0, len(ids))
	poller := socket.NewPoller()
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		sub, err := p.registry.checkout(id)
		if err != nil {
			if errors.Is(err, ErrBusy) {
				res.Errors[id] = errMsgBusy
			} else {
				res.Errors[id] = errMsgNotFound
			}
			continue
		}
		entries = append(entries, pollEntry{id: id, sub: sub})
		poller.Add(sub.sock)
	}
	if len(entries) == 0 {
		return res, nil
	}

	checkedIn := false
	checkinAll := func() {
		if checkedIn {
			return
		}
		checkedIn = true
		for _, e := range entries {
			if p.registry.unsubRequested(e.sub) {
				// unsubscribed while this poll held it: dispose of it now
				p.registry.forceRemove(e.id)
				continue
			}
			p.registry.checkin(e.sub)
		}
	}
	// every socket checked out gets checked back in on every exit path
	defer checkinAll()

	if timeout < 0 || timeout > p.maxPollWindow {
		timeout = p.maxPollWindow
	}

	// wait in bounded slices until traffic arrives, coming up for air to
	// notice canceled subscriptions
	var polled time.Duration
	remaining := timeout
	for remaining > 0 {
		slice := pollSlice
		if remaining < slice {
			slice = remaining
		}

		ready, err := poller.Poll(slice)
		if err != nil {
			logging.Error("Error polling on subscription sockets.", "error", err)
			return res, err
		}
		if ready > 0 {
			break
		}

		live := entries[:0]
		for _, e := range entries {
			if p.registry.unsubRequested(e.sub) {
				res.Errors[e.id] = errMsgInterrupted
				poller.Remove(e.sub.sock)
				p.registry.forceRemove(e.id)
				continue
			}
			live = append(live, e)
		}
		entries = live
		if len(entries) == 0 {
			// everything that was polling got unsubscribed
			checkedIn = true
			res.Polled = polled
			return res, nil
		}

		polled += slice
		remaining -= slice

		if polled >= p.maxPollWindow {
			res.Partial = true
			res.Polled = polled
			return res, nil
		}
	}

	// at least one socket is readable, or the timeout ran out (or was
	// zero) with nothing ready; drain
	// every surviving socket in non-blocking bursts
	h := &messageHeap{}
	for _, e := range entries {
		p.drainSubscription(e, h, res.Errors)
	}
	checkinAll()

	res.Messages = make([]SubscriptionMessage, 0, h.Len())
	for h.Len() > 0 {
		res.Messages = append(res.Messages, heap.Pop(h).(SubscriptionMessage))
	}
	metrics.MessagesDelivered.Add(float64(len(res.Messages)))
	res.Polled = polled
	return res, nil
}

// drainSubscription reads queued messages off one subscription socket until
// it runs dry, applying the subscription's filter and projection. A recv or
// framing failure records an error for the id and keeps the partial drain.
func (p *Plane) drainSubscription(e pollEntry, h *messageHeap, errs map[SubscriptionId]string) {
	for {
		frames, err := e.sub.sock.RecvNonblocking()
		if err != nil {
			errs[e.id] = errMsgRecv
			return
		}
		if frames == nil {
			return
		}

		msg, err := wire.Decode(frames)
		if err != nil {
			logging.Warn("Malformed message on subscription socket.", "id", e.id, "error", err)
			errs[e.id] = errMsgRecv
			return
		}

		if e.sub.filter != nil && !e.sub.filter.Matches(msg.Body) {
			metrics.MessagesFiltered.Inc()
			continue
		}
		body := msg.Body
		if e.sub.projection != nil {
			body = e.sub.projection.Transform(body)
		}

		heap.Push(h, SubscriptionMessage{
			SubscriptionId: e.id,
			Channel:        msg.Channel,
			Body:           body,
			Timestamp:      msg.Timestamp,
		})
	}
}
