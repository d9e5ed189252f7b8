package codec

import (
	"bytes"
	"errors"
)

var (
	errChunkSize      = errors.New("codec: invalid byte in chunk length")
	errChunkSizeLarge = errors.New("codec: chunk length too large")
	errChunkFraming   = errors.New("codec: malformed chunked encoding")
)

type chunkPhase int

const (
	chunkSize chunkPhase = iota
	chunkData
	chunkDataCR
	chunkDataLF
	chunkTrailer
)

// chunkState decodes the chunked transfer coding incrementally, one byte
// boundary at a time. Partial size lines and trailers accumulate in line
// across Feed calls.
type chunkState struct {
	phase     chunkPhase
	remaining int64
	line      []byte
}

func (p *Parser) feedChunked(data []byte) (int, error) {
	c := &p.chunk
	consumed := 0
	for consumed < len(data) {
		switch c.phase {
		case chunkSize:
			i := bytes.IndexByte(data[consumed:], '\n')
			if i < 0 {
				c.line = append(c.line, data[consumed:]...)
				return len(data), nil
			}
			c.line = append(c.line, data[consumed:consumed+i]...)
			consumed += i + 1
			size, err := parseChunkSize(trimCR(c.line))
			c.line = c.line[:0]
			if err != nil {
				return consumed, err
			}
			if size == 0 {
				c.phase = chunkTrailer
			} else {
				c.remaining = size
				c.phase = chunkData
			}
		case chunkData:
			n := int64(len(data) - consumed)
			if n > c.remaining {
				n = c.remaining
			}
			p.body.Write(data[consumed : consumed+int(n)])
			consumed += int(n)
			c.remaining -= n
			if c.remaining == 0 {
				c.phase = chunkDataCR
			}
		case chunkDataCR:
			if data[consumed] != '\r' {
				return consumed, errChunkFraming
			}
			consumed++
			c.phase = chunkDataLF
		case chunkDataLF:
			if data[consumed] != '\n' {
				return consumed, errChunkFraming
			}
			consumed++
			c.phase = chunkSize
		case chunkTrailer:
			i := bytes.IndexByte(data[consumed:], '\n')
			if i < 0 {
				c.line = append(c.line, data[consumed:]...)
				return len(data), nil
			}
			line := trimCR(append(c.line, data[consumed:consumed+i]...))
			c.line = nil
			consumed += i + 1
			if len(line) == 0 {
				p.state = stateDone
				return consumed, nil
			}
			// trailer fields are consumed and dropped
		}
	}
	return consumed, nil
}

// parseChunkSize decodes a hexadecimal chunk size, ignoring any chunk
// extension after a semicolon.
func parseChunkSize(line []byte) (int64, error) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	var size int64
	cnt := 0
	for _, b := range line {
		cnt++
		switch {
		case '0' <= b && b <= '9':
			b = b - '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, errChunkSize
		}
		size <<= 4
		size |= int64(b)
		if cnt >= 16 {
			return 0, errChunkSizeLarge
		}
	}
	if cnt == 0 {
		return 0, errChunkSize
	}
	return size, nil
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
