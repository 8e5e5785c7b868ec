package protocol

import "fmt"

// Message is a decoded framed message: a tag plus its typed payload.
// Exactly one of the payload fields is meaningful, selected by Tag.
type Message struct {
	Tag Tag

	// Start payload.
	User         string
	Session      string
	Password     string
	Passwordless bool

	// LoginSucceeded payload (reuses User for the mapped user name).
	SessionName string

	// RequestEnv / RequestCookieLink reuse User for the target user name.

	// Env payload.
	EnvList []string

	// SessionID / RequestSessionID reply.
	ID int32

	// RequestCookieLink payload.
	Path string

	// Display / RequestDisplay reply.
	DisplayName string
}

// Encode serializes m into a raw payload (tag excluded; the framed channel
// writes the tag as the payload's first four bytes — see wire.Channel.Send).
func (m Message) Encode() ([]byte, error) {
	var e Encoder
	switch m.Tag {
	case Start:
		e.PutString(m.User)
		e.PutString(m.Session)
		e.PutString(m.Password)
		e.PutBool(m.Passwordless)
	case End:
		// no payload
	case LoginSucceeded:
		e.PutString(m.SessionName)
		e.PutString(m.User)
	case LoginFailed:
		// no payload
	case RequestEnv:
		e.PutString(m.User)
	case Env:
		e.PutStringList(m.EnvList)
	case RequestSessionID:
		// no payload
	case SessionID:
		e.PutInt32(m.ID)
	case RequestCookieLink:
		e.PutString(m.Path)
		e.PutString(m.User)
	case CookieLink:
		// no payload
	case RequestDisplay:
		// no payload
	case Display:
		e.PutString(m.DisplayName)
	default:
		return nil, fmt.Errorf("protocol: encode: unknown tag %v", m.Tag)
	}
	return e.Bytes(), nil
}

// Decode parses a raw payload for the given tag into a Message.
func Decode(tag Tag, payload []byte) (Message, error) {
	d := NewDecoder(payload)
	m := Message{Tag: tag}
	var err error
	switch tag {
	case Start:
		if m.User, err = d.String(); err != nil {
			return m, err
		}
		if m.Session, err = d.String(); err != nil {
			return m, err
		}
		if m.Password, err = d.String(); err != nil {
			return m, err
		}
		if m.Passwordless, err = d.Bool(); err != nil {
			return m, err
		}
	case End, LoginFailed, RequestSessionID, CookieLink, RequestDisplay:
		// no payload
	case LoginSucceeded:
		if m.SessionName, err = d.String(); err != nil {
			return m, err
		}
		if m.User, err = d.String(); err != nil {
			return m, err
		}
	case RequestEnv:
		if m.User, err = d.String(); err != nil {
			return m, err
		}
	case Env:
		if m.EnvList, err = d.StringList(); err != nil {
			return m, err
		}
	case SessionID:
		if m.ID, err = d.Int32(); err != nil {
			return m, err
		}
	case RequestCookieLink:
		if m.Path, err = d.String(); err != nil {
			return m, err
		}
		if m.User, err = d.String(); err != nil {
			return m, err
		}
	case Display:
		if m.DisplayName, err = d.String(); err != nil {
			return m, err
		}
	default:
		return m, fmt.Errorf("protocol: decode: unknown tag %v", tag)
	}
	return m, nil
}
