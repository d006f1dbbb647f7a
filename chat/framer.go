package chat

import (
	"bytes"
	"errors"
)

// MaxLineLength bounds how much undelimited data the framer will hold.
const MaxLineLength = 64 * 1024

// ErrLineTooLong is returned by Feed when the peer sends more than
// MaxLineLength bytes without a line delimiter.
var ErrLineTooLong = errors.New("chat: line exceeds maximum length")

var crlf = []byte("\r\n")

// Framer splits a byte stream into CRLF-terminated lines. Data that does not
// yet end in a delimiter is kept until a later Feed completes it.
type Framer struct {
	buf []byte
}

// Feed appends p and returns every line completed by it, without the
// delimiter, in stream order.
func (f *Framer) Feed(p []byte) ([]string, error) {
	if len(p) == 0 {
		return nil, nil
	}
	f.buf = append(f.buf, p...)

	var lines []string
	for {
		i := bytes.Index(f.buf, crlf)
		if i < 0 {
			break
		}
		lines = append(lines, string(f.buf[:i]))
		f.buf = f.buf[i+len(crlf):]
	}
	// Compact so the backing array does not grow without bound.
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	} else if cap(f.buf) > 2*MaxLineLength {
		f.buf = append([]byte(nil), f.buf...)
	}
	if len(f.buf) > MaxLineLength {
		return lines, ErrLineTooLong
	}
	return lines, nil
}

// Buffered returns the number of bytes waiting for a delimiter.
func (f *Framer) Buffered() int { return len(f.buf) }

// Reset discards any partial line.
func (f *Framer) Reset() { f.buf = nil }
