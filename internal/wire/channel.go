// Package wire implements the length-prefixed framed channel that carries
// protocol.Message values between the Session Broker and the authenticator
// helper over an inherited pipe.
//
// Each frame is a u32 byte length followed by that many payload bytes,
// where the first four payload bytes are the protocol.Tag. Receive reads
// exactly length bytes (looping over short reads) before any field is
// decoded, and Send buffers the whole payload before writing the length
// prefix — this is the discipline the original SafeDataStream existed to
// enforce: a reader must never interpret a partial message as the start of
// the next one.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gascity-labs/authbroker/internal/protocol"
)

// maxFrameSize bounds a single frame to guard against a corrupt or hostile
// length prefix causing an unbounded allocation.
const maxFrameSize = 1 << 20 // 1 MiB

// Channel is the blocking framed codec layered over a duplex byte stream.
// It is not safe for concurrent use from multiple goroutines: the broker
// and the helper each drive one Channel from a single event loop, per
// SPEC_FULL.md §5.
type Channel struct {
	rw  io.ReadWriter
	buf []byte // scratch decode buffer, reset by clear() between messages
}

// New wraps rw (typically the broker's end of the pipe to the helper, or
// the helper's stdin/stdout) in a framed Channel.
func New(rw io.ReadWriter) *Channel {
	return &Channel{rw: rw}
}

// clear resets the internal scratch buffer so a stale partial read can
// never be reinterpreted as part of the next message.
func (c *Channel) clear() {
	c.buf = c.buf[:0]
}

// Receive blocks until one complete framed message arrives, or returns an
// error (io.EOF on a closed pipe, counted as brokererr.ChannelClosed by
// callers).
func (c *Channel) Receive() (protocol.Message, error) {
	c.clear()

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		return protocol.Message{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return protocol.Message{}, fmt.Errorf("wire: frame too short: %d bytes", length)
	}
	if length > maxFrameSize {
		return protocol.Message{}, fmt.Errorf("wire: frame too large: %d bytes", length)
	}

	c.buf = make([]byte, length)
	if _, err := io.ReadFull(c.rw, c.buf); err != nil {
		return protocol.Message{}, err
	}

	tag := protocol.Tag(binary.BigEndian.Uint32(c.buf[:4]))
	msg, err := protocol.Decode(tag, c.buf[4:])
	c.clear()
	return msg, err
}

// Send buffers the whole message payload and writes the length prefix
// before the bytes, so a partial write never becomes visible to the peer
// as a truncated frame header.
func (c *Channel) Send(msg protocol.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	frame := make([]byte, 4+4+len(payload))
	binary.BigEndian.PutUint32(frame[4:8], uint32(msg.Tag))
	copy(frame[8:], payload)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(frame)-4))

	_, err = c.rw.Write(frame)
	return err
}
