// Package codec implements the incremental HTTP/1.1 response parser driving
// the client protocol engine. The parser is push-based: connection callbacks
// feed it raw bytes and poll completion state, it never reads on its own.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

var (
	errMalformedResponse = errors.New("codec: malformed response line")
	errMalformedStatus   = errors.New("codec: malformed status code")
	errContentLength     = errors.New("codec: conflicting content-length headers")
)

type state int

const (
	stateHead state = iota // status line + headers accumulating
	stateBody
	stateDone
)

type framing int

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingUntilClose
)

// Parser decodes one response message. It is bound to a single exchange;
// a 100-continue negotiation resets it for the real response.
type Parser struct {
	state   state
	framing framing

	head bytes.Buffer // unparsed status line + header bytes
	body bytes.Buffer // decoded body bytes pending RecvBody

	proto      string
	status     string
	statusCode int
	headers    http.Header

	remaining int64 // content-length framing
	chunk     chunkState
	noBody    bool // HEAD exchanges carry no payload regardless of headers
}

func New() *Parser {
	return &Parser{}
}

// Reset returns the parser to its initial state. Used when a 100 interim
// response was consumed and the final response follows on the same wire.
func (p *Parser) Reset() {
	noBody := p.noBody
	*p = Parser{noBody: noBody}
}

// SetNoBody marks the message as header-only (responses to HEAD).
func (p *Parser) SetNoBody() { p.noBody = true }

func (p *Parser) HeadersComplete() bool { return p.state != stateHead }
func (p *Parser) MessageComplete() bool { return p.state == stateDone }
func (p *Parser) StatusCode() int       { return p.statusCode }
func (p *Parser) Proto() string         { return p.proto }
func (p *Parser) Status() string        { return p.status }
func (p *Parser) Headers() http.Header  { return p.headers }

// RecvBody drains the decoded body bytes buffered since the last call.
func (p *Parser) RecvBody() []byte {
	if p.body.Len() == 0 {
		return nil
	}
	b := append([]byte(nil), p.body.Bytes()...)
	p.body.Reset()
	return b
}

// Feed consumes data and advances the message state. It returns how many
// bytes were consumed; consuming fewer bytes than offered (or returning an
// error) means the stream is malformed and the connection is unusable.
func (p *Parser) Feed(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		switch p.state {
		case stateHead:
			n, err := p.feedHead(data[consumed:])
			consumed += n
			if err != nil {
				return consumed, err
			}
		case stateBody:
			n, err := p.feedBody(data[consumed:])
			consumed += n
			if err != nil {
				return consumed, err
			}
		case stateDone:
			// bytes after the end of the message don't belong to this
			// exchange and are never consumed
			return consumed, nil
		}
	}
	return consumed, nil
}

// Close signals end of stream. Read-until-close bodies complete here; an
// EOF in the middle of any other message is truncation.
func (p *Parser) Close() error {
	if p.state == stateBody && p.framing == framingUntilClose {
		p.state = stateDone
		return nil
	}
	if p.state != stateDone {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// feedHead accumulates bytes until the blank line ending the header block,
// then parses status line and headers and decides the body framing.
func (p *Parser) feedHead(data []byte) (int, error) {
	p.head.Write(data)
	end := bytes.Index(p.head.Bytes(), []byte("\r\n\r\n"))
	if end < 0 {
		return len(data), nil
	}
	// bytes past the header block were not consumed by this step
	over := p.head.Len() - (end + 4)
	consumed := len(data) - over

	if err := p.parseHead(p.head.Bytes()[:end+4]); err != nil {
		return consumed, err
	}
	p.head.Reset()
	return consumed, p.decideFraming()
}

func (p *Parser) parseHead(block []byte) error {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	line, err := tp.ReadLine()
	if err != nil {
		return errMalformedResponse
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/1.") {
		return errMalformedResponse
	}
	p.proto = proto
	p.status = strings.TrimLeft(status, " ")

	code, _, _ := strings.Cut(p.status, " ")
	if len(code) != 3 {
		return errMalformedStatus
	}
	p.statusCode, err = strconv.Atoi(code)
	if err != nil || p.statusCode < 0 {
		return errMalformedStatus
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return fmt.Errorf("codec: reading headers: %w", err)
	}
	p.headers = http.Header(mimeHeader)
	return nil
}

func (p *Parser) decideFraming() error {
	p.state = stateBody
	code := p.statusCode
	if p.noBody || code < 200 || code == 204 || code == 304 {
		p.state = stateDone
		return nil
	}
	if hasChunkedTE(p.headers) {
		p.framing = framingChunked
		return nil
	}
	cl, ok, err := contentLength(p.headers)
	if err != nil {
		return err
	}
	if ok {
		p.framing = framingLength
		p.remaining = cl
		if cl == 0 {
			p.state = stateDone
		}
		return nil
	}
	p.framing = framingUntilClose
	return nil
}

func (p *Parser) feedBody(data []byte) (int, error) {
	switch p.framing {
	case framingLength:
		n := int64(len(data))
		if n > p.remaining {
			n = p.remaining
		}
		p.body.Write(data[:n])
		p.remaining -= n
		if p.remaining == 0 {
			p.state = stateDone
		}
		return int(n), nil
	case framingChunked:
		return p.feedChunked(data)
	case framingUntilClose:
		p.body.Write(data)
		return len(data), nil
	}
	return 0, errContentLength
}

func hasChunkedTE(h http.Header) bool {
	for _, v := range h.Values("Transfer-Encoding") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "chunked") {
				return true
			}
		}
	}
	return false
}

// contentLength resolves the Content-Length headers. Multiple differing
// values are a smuggling vector and fail the message, duplicates collapse.
func contentLength(h http.Header) (int64, bool, error) {
	values := h.Values("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}
	first := textproto.TrimString(values[0])
	for _, v := range values[1:] {
		if textproto.TrimString(v) != first {
			return 0, false, errContentLength
		}
	}
	n, err := strconv.ParseUint(first, 10, 63)
	if err != nil {
		return 0, false, fmt.Errorf("codec: bad content-length %q", first)
	}
	return int64(n), true, nil
}
