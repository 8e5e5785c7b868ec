package wire

import (
	"bytes"
	"io"
	"reflect"
	"testing"

	"github.com/gascity-labs/authbroker/internal/protocol"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	ch := New(buf)

	in := protocol.Message{
		Tag:          protocol.Start,
		User:         "alice",
		Session:      "plasma.desktop",
		Password:     "",
		Passwordless: true,
	}
	if err := ch.Send(in); err != nil {
		t.Fatalf("Send() = %v, want nil", err)
	}

	out, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive() = %v, want nil", err)
	}
	if out.Tag != in.Tag || out.User != in.User || out.Session != in.Session ||
		out.Password != in.Password || out.Passwordless != in.Passwordless {
		t.Errorf("Receive() = %+v, want %+v", out, in)
	}
}

func TestReceiveTwoMessagesNoCrossContamination(t *testing.T) {
	buf := &bytes.Buffer{}
	ch := New(buf)

	m1 := protocol.Message{Tag: protocol.RequestSessionID}
	m2 := protocol.Message{Tag: protocol.SessionID, ID: 7}

	if err := ch.Send(m1); err != nil {
		t.Fatalf("Send(m1) = %v", err)
	}
	if err := ch.Send(m2); err != nil {
		t.Fatalf("Send(m2) = %v", err)
	}

	got1, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive() #1 = %v", err)
	}
	if got1.Tag != protocol.RequestSessionID {
		t.Errorf("first message tag = %v, want RequestSessionID", got1.Tag)
	}

	got2, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive() #2 = %v", err)
	}
	if got2.Tag != protocol.SessionID || got2.ID != 7 {
		t.Errorf("second message = %+v, want {Tag:SessionID ID:7}", got2)
	}
}

func TestReceiveEOF(t *testing.T) {
	ch := New(&bytes.Buffer{})
	if _, err := ch.Receive(); err != io.EOF {
		t.Errorf("Receive() on empty stream = %v, want io.EOF", err)
	}
}

func TestReceiveFrameTooLarge(t *testing.T) {
	buf := &bytes.Buffer{}
	var lenBuf [4]byte
	lenBuf[0] = 0xff // 0xffffffff >> maxFrameSize
	lenBuf[1] = 0xff
	lenBuf[2] = 0xff
	lenBuf[3] = 0xff
	buf.Write(lenBuf[:])
	ch := New(buf)
	if _, err := ch.Receive(); err == nil {
		t.Error("Receive() with oversized length prefix = nil error, want error")
	}
}

func TestAllTagsRoundTrip(t *testing.T) {
	msgs := []protocol.Message{
		{Tag: protocol.Start, User: "bob", Session: "gnome", Password: "nope", Passwordless: false},
		{Tag: protocol.End},
		{Tag: protocol.LoginSucceeded, SessionName: "Session7", User: "alice"},
		{Tag: protocol.LoginFailed},
		{Tag: protocol.RequestEnv, User: "alice"},
		{Tag: protocol.Env, EnvList: []string{"HOME=/home/alice", "USER=alice"}},
		{Tag: protocol.RequestSessionID},
		{Tag: protocol.SessionID, ID: 7},
		{Tag: protocol.RequestCookieLink, Path: "/home/alice/.Xauthority", User: "alice"},
		{Tag: protocol.CookieLink},
		{Tag: protocol.RequestDisplay},
		{Tag: protocol.Display, DisplayName: ":0"},
	}

	for _, want := range msgs {
		buf := &bytes.Buffer{}
		ch := New(buf)
		if err := ch.Send(want); err != nil {
			t.Fatalf("Send(%v) = %v", want.Tag, err)
		}
		got, err := ch.Receive()
		if err != nil {
			t.Fatalf("Receive() for %v = %v", want.Tag, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round-trip for %v = %+v, want %+v", want.Tag, got, want)
		}
	}
}
