package ws

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// Opcode identifies a frame type.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xa
)

const maxControlPayload = 125

// CloseError carries the close frame's status code and reason. It is
// returned from ReadMessage when the peer closes the connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("ws: connection closed %d %s", e.Code, e.Reason)
}

// Conn frames messages over an upgraded connection. Client frames are
// masked as the protocol requires. Reads and writes may run concurrently
// with each other, but each side from one goroutine at a time.
type Conn struct {
	raw net.Conn
	rd  *bufio.Reader
	wmu sync.Mutex
}

func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, rd: bufio.NewReader(raw)}
}

// ReadMessage assembles the next data message, transparently answering
// pings. A close frame surfaces as *CloseError.
func (c *Conn) ReadMessage() (Opcode, []byte, error) {
	var (
		kind    Opcode
		payload []byte
	)
	for {
		op, fin, data, err := c.readFrame()
		if err != nil {
			return 0, nil, err
		}
		switch op {
		case OpPing:
			if err := c.writeFrame(OpPong, data); err != nil {
				return 0, nil, err
			}
			continue
		case OpPong:
			continue
		case OpClose:
			ce := &CloseError{Code: 1005}
			if len(data) >= 2 {
				ce.Code = int(binary.BigEndian.Uint16(data))
				ce.Reason = string(data[2:])
			}
			c.writeFrame(OpClose, data)
			return 0, nil, ce
		case OpContinuation:
			if payload == nil {
				return 0, nil, fmt.Errorf("ws: continuation without start")
			}
		case OpText, OpBinary:
			if payload != nil {
				return 0, nil, fmt.Errorf("ws: interleaved data frames")
			}
			kind = op
		default:
			return 0, nil, fmt.Errorf("ws: reserved opcode %#x", op)
		}
		payload = append(payload, data...)
		if fin {
			return kind, payload, nil
		}
	}
}

// WriteMessage sends a single unfragmented data message.
func (c *Conn) WriteMessage(op Opcode, payload []byte) error {
	if op != OpText && op != OpBinary {
		return fmt.Errorf("ws: %#x is not a data opcode", op)
	}
	return c.writeFrame(op, payload)
}

// WriteText sends a text message.
func (c *Conn) WriteText(s string) error { return c.writeFrame(OpText, []byte(s)) }

// WriteBinary sends a binary message.
func (c *Conn) WriteBinary(b []byte) error { return c.writeFrame(OpBinary, b) }

// Ping sends a ping carrying data.
func (c *Conn) Ping(data []byte) error { return c.writeFrame(OpPing, data) }

// Close sends a close frame and tears the connection down.
func (c *Conn) Close(code int, reason string) error {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	err := c.writeFrame(OpClose, payload)
	if cerr := c.raw.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Conn) readFrame() (Opcode, bool, []byte, error) {
	var head [2]byte
	if _, err := io.ReadFull(c.rd, head[:]); err != nil {
		return 0, false, nil, err
	}
	fin := head[0]&0x80 != 0
	if head[0]&0x70 != 0 {
		return 0, false, nil, fmt.Errorf("ws: nonzero reserved bits")
	}
	op := Opcode(head[0] & 0x0f)
	if head[1]&0x80 != 0 {
		return 0, false, nil, fmt.Errorf("ws: masked frame from server")
	}

	length := uint64(head[1] & 0x7f)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(c.rd, ext[:]); err != nil {
			return 0, false, nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(c.rd, ext[:]); err != nil {
			return 0, false, nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if op >= OpClose && (length > maxControlPayload || !fin) {
		return 0, false, nil, fmt.Errorf("ws: malformed control frame")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.rd, payload); err != nil {
		return 0, false, nil, err
	}
	return op, fin, payload, nil
}

func (c *Conn) writeFrame(op Opcode, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	head := make([]byte, 0, 14)
	head = append(head, 0x80|byte(op))
	switch n := len(payload); {
	case n <= 125:
		head = append(head, 0x80|byte(n))
	case n <= 0xffff:
		head = append(head, 0x80|126, byte(n>>8), byte(n))
	default:
		head = append(head, 0x80|127)
		head = binary.BigEndian.AppendUint64(head, uint64(n))
	}

	var mask [4]byte
	rand.Read(mask[:])
	head = append(head, mask[:]...)

	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i&3]
	}
	if _, err := c.raw.Write(head); err != nil {
		return err
	}
	_, err := c.raw.Write(masked)
	return err
}
