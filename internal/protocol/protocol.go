// Package protocol defines the closed set of framed messages exchanged
// between the Session Broker (parent) and the authenticator helper (child)
// over the inherited pipe, and the portable binary encoding of their
// payload fields.
//
// Tags, directions, and payload shapes are fixed by contract — see
// SPEC_FULL.md §6. Every field is encoded with a single, fixed endianness
// (big-endian) so both ends agree without negotiation.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag identifies a message kind. The tag set is closed; an unrecognized tag
// is a protocol error, never an extension point.
type Tag uint32

const (
	// Start is sent broker -> helper to begin a login attempt.
	Start Tag = iota + 1
	// End is sent broker -> helper to terminate the current session.
	End
	// LoginSucceeded is sent helper -> broker once the session is launched.
	LoginSucceeded
	// LoginFailed is sent helper -> broker when authentication or launch fails.
	LoginFailed
	// RequestEnv is sent helper -> broker to ask for the session environment.
	RequestEnv
	// Env is sent broker -> helper in reply to RequestEnv.
	Env
	// RequestSessionID is sent helper -> broker to obtain a session id.
	RequestSessionID
	// SessionID is sent broker -> helper in reply to RequestSessionID.
	SessionID
	// RequestCookieLink is sent helper -> broker to materialize the X
	// authority cookie for the target user.
	RequestCookieLink
	// CookieLink is sent broker -> helper once the cookie file exists.
	CookieLink
	// RequestDisplay is sent helper -> broker to ask for the display name.
	RequestDisplay
	// Display is sent broker -> helper in reply to RequestDisplay.
	Display
)

// String returns the tag's name for logging.
func (t Tag) String() string {
	switch t {
	case Start:
		return "Start"
	case End:
		return "End"
	case LoginSucceeded:
		return "LoginSucceeded"
	case LoginFailed:
		return "LoginFailed"
	case RequestEnv:
		return "RequestEnv"
	case Env:
		return "Env"
	case RequestSessionID:
		return "RequestSessionID"
	case SessionID:
		return "SessionID"
	case RequestCookieLink:
		return "RequestCookieLink"
	case CookieLink:
		return "CookieLink"
	case RequestDisplay:
		return "RequestDisplay"
	case Display:
		return "Display"
	default:
		return fmt.Sprintf("Tag(%d)", uint32(t))
	}
}

// order is big-endian throughout, matching the spec's "single choice,
// applied consistently" requirement.
var order = binary.BigEndian

// Encoder accumulates a message payload before it is handed to the framed
// channel for transmission. The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// Bytes returns the accumulated payload.
func (e *Encoder) Bytes() []byte { return e.buf }

// PutUint32 appends a u32 field.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutInt32 appends an i32 field.
func (e *Encoder) PutInt32(v int32) {
	e.PutUint32(uint32(v))
}

// PutString appends a length-prefixed UTF-8 string field.
func (e *Encoder) PutString(s string) {
	e.PutUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBool appends a one-byte boolean field.
func (e *Encoder) PutBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// PutStringList appends a count-prefixed list of strings.
func (e *Encoder) PutStringList(list []string) {
	e.PutUint32(uint32(len(list)))
	for _, s := range list {
		e.PutString(s)
	}
}

// Decoder reads fields off a fully-buffered payload in declaration order.
// Decoding a payload shorter than expected returns io.ErrUnexpectedEOF.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps a fully-received payload for field-by-field decoding.
func NewDecoder(payload []byte) *Decoder {
	return &Decoder{buf: payload}
}

func (d *Decoder) need(n int) error {
	if len(d.buf)-d.pos < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// Uint32 reads a u32 field.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := order.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// Int32 reads an i32 field.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

// String reads a length-prefixed UTF-8 string field.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// Bool reads a one-byte boolean field.
func (d *Decoder) Bool() (bool, error) {
	if err := d.need(1); err != nil {
		return false, err
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

// StringList reads a count-prefixed list of strings.
func (d *Decoder) StringList() ([]string, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.String()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}
