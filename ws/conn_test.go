package ws

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
)

// fakeServer reads one client frame, unmasks it and returns the payload.
func readClientFrame(t *testing.T, conn net.Conn) (Opcode, []byte) {
	t.Helper()
	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil {
		t.Fatal(err)
	}
	if head[1]&0x80 == 0 {
		t.Fatal("client frame not masked")
	}
	length := int(head[1] & 0x7f)
	switch length {
	case 126:
		ext := make([]byte, 2)
		io.ReadFull(conn, ext)
		length = int(binary.BigEndian.Uint16(ext))
	case 127:
		t.Fatal("unexpected 64-bit length in test")
	}
	mask := make([]byte, 4)
	if _, err := io.ReadFull(conn, mask); err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatal(err)
	}
	for i := range payload {
		payload[i] ^= mask[i&3]
	}
	return Opcode(head[0] & 0x0f), payload
}

func writeServerFrame(t *testing.T, conn net.Conn, fin bool, op Opcode, payload []byte) {
	t.Helper()
	b0 := byte(op)
	if fin {
		b0 |= 0x80
	}
	head := []byte{b0, byte(len(payload))}
	if _, err := conn.Write(append(head, payload...)); err != nil {
		t.Fatal(err)
	}
}

func TestWriteMessageMasked(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(client)
	go func() { c.WriteText("hello") }()

	op, payload := readClientFrame(t, server)
	if op != OpText || string(payload) != "hello" {
		t.Errorf("server saw %v %q", op, payload)
	}
}

func TestReadFragmented(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		writeServerFrame(t, server, false, OpText, []byte("Wiki"))
		writeServerFrame(t, server, true, OpContinuation, []byte("pedia"))
	}()

	op, payload, err := NewConn(client).ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if op != OpText || string(payload) != "Wikipedia" {
		t.Errorf("got %v %q", op, payload)
	}
}

func TestReadAnswersPing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		writeServerFrame(t, server, true, OpPing, []byte("probe"))
		op, payload := readClientFrame(t, server)
		if op != OpPong || string(payload) != "probe" {
			t.Errorf("pong = %v %q", op, payload)
		}
		writeServerFrame(t, server, true, OpText, []byte("after"))
	}()

	op, payload, err := NewConn(client).ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if op != OpText || string(payload) != "after" {
		t.Errorf("got %v %q", op, payload)
	}
}

func TestReadClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		payload := append(binary.BigEndian.AppendUint16(nil, 1001), "going away"...)
		writeServerFrame(t, server, true, OpClose, payload)
		readClientFrame(t, server) // close echo
	}()

	_, _, err := NewConn(client).ReadMessage()
	ce, ok := err.(*CloseError)
	if !ok {
		t.Fatalf("err = %v, want *CloseError", err)
	}
	if ce.Code != 1001 || ce.Reason != "going away" {
		t.Errorf("close = %d %q", ce.Code, ce.Reason)
	}
}

func TestRejectMaskedServerFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go server.Write([]byte{0x81, 0x80, 0, 0, 0, 0})

	if _, _, err := NewConn(client).ReadMessage(); err == nil {
		t.Error("masked server frame must be rejected")
	}
}
