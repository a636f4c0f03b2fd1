package core

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cleanReader strips a leading UTF-8 byte-order mark and replaces every
// invalid UTF-8 byte with '?', streaming in constant memory.
type cleanReader struct {
	br      *bufio.Reader
	checked bool
	pending []byte // encoded rune bytes that did not fit the last read
}

// NewCleanReader wraps r so the CSV tokenizer only ever sees valid UTF-8
// without a BOM.
func NewCleanReader(r io.Reader) io.Reader {
	return &cleanReader{br: bufio.NewReader(r)}
}

func (c *cleanReader) Read(p []byte) (int, error) {
	if !c.checked {
		c.checked = true
		if head, _ := c.br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			c.br.Discard(len(utf8BOM))
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	if len(c.pending) > 0 {
		return n, nil
	}
	for n < len(p) {
		b, err := c.br.Peek(1)
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		// ASCII fast path
		if b[0] < utf8.RuneSelf {
			p[n] = b[0]
			c.br.Discard(1)
			n++
			continue
		}

		r, size, err := c.br.ReadRune()
		if err != nil {
			return n, err
		}
		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}
		var enc [utf8.UTFMax]byte
		w := utf8.EncodeRune(enc[:], r)
		k := copy(p[n:], enc[:w])
		n += k
		if k < w {
			c.pending = append(c.pending[:0], enc[k:w]...)
		}
	}
	return n, nil
}
