// Package wire defines the three-frame message format used on every plane
// socket: channel, body, timestamp. The transport carries the frames of one
// message atomically; this package only orders and packs them.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameCount is the number of frames in one published message.
const FrameCount = 3

// ErrFrameCount reports a message with a missing or extra frame.
var ErrFrameCount = errors.New("wire: wrong frame count")

// ErrTimestampFrame reports a timestamp frame that is not 8 bytes.
var ErrTimestampFrame = errors.New("wire: malformed timestamp frame")

// Message is one decoded delivery unit.
type Message struct {
	// Channel is the topic the message was published on. UTF-8, no
	// trailing NUL.
	Channel string

	// Body is an opaque document.
	Body []byte

	// Timestamp is the publisher clock at send, milliseconds.
	Timestamp uint64
}

// Encode renders m as its wire frames: channel, body, and an 8-byte
// little-endian timestamp.
func Encode(m Message) [][]byte {
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, m.Timestamp)
	return [][]byte{[]byte(m.Channel), m.Body, ts}
}

// Decode parses the frames of one received message. A missing frame is a
// protocol error.
func Decode(frames [][]byte) (Message, error) {
	if len(frames) != FrameCount {
		return Message{}, fmt.Errorf("%w: got %d frames", ErrFrameCount, len(frames))
	}
	if len(frames[2]) != 8 {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrTimestampFrame, len(frames[2]))
	}
	return Message{
		Channel:   string(frames[0]),
		Body:      frames[1],
		Timestamp: binary.LittleEndian.Uint64(frames[2]),
	}, nil
}
