// Package binio provides the big-endian cursor and writers used by the box
// and codestream layers. Every multi-byte field in a JPEG 2000 file is
// big-endian; nothing here ever detects byte order.
package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

// Cursor reads a bounded range of an io.ReaderAt, tracking an absolute position.
type Cursor struct {
	r   io.ReaderAt
	pos int64
	end int64
}

// NewCursor creates a cursor over the first size bytes of r
func NewCursor(r io.ReaderAt, size int64) *Cursor {
	return &Cursor{r: r, end: size}
}

// FromBytes creates a cursor over an in-memory buffer
func FromBytes(b []byte) *Cursor {
	return NewCursor(bytes.NewReader(b), int64(len(b)))
}

// Bounded returns a cursor over [start, end) of the same source.
// The range is clamped to this cursor's end.
func (c *Cursor) Bounded(start, end int64) *Cursor {
	if end > c.end {
		end = c.end
	}
	return &Cursor{r: c.r, pos: start, end: end}
}

// Source returns the underlying reader
func (c *Cursor) Source() io.ReaderAt {
	return c.r
}

// Tell returns the absolute position
func (c *Cursor) Tell() int64 {
	return c.pos
}

// End returns the absolute position one past the last readable byte
func (c *Cursor) End() int64 {
	return c.end
}

// Remaining returns the number of readable bytes left
func (c *Cursor) Remaining() int64 {
	if c.pos >= c.end {
		return 0
	}
	return c.end - c.pos
}

// Seek moves to an absolute position. Seeking to End() is allowed.
func (c *Cursor) Seek(offset int64) error {
	if offset < 0 || offset > c.end {
		return fmt.Errorf("seek to %d outside [0, %d]: %w", offset, c.end, jp2err.ErrTruncated)
	}
	c.pos = offset
	return nil
}

// Skip advances n bytes
func (c *Cursor) Skip(n int64) error {
	if n > c.Remaining() {
		return jp2err.Truncated(c.pos, n, c.Remaining())
	}
	c.pos += n
	return nil
}

// ReadFixed returns exactly n bytes or a TruncatedInputError
func (c *Cursor) ReadFixed(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d at offset %d: %w", n, c.pos, jp2err.ErrTruncated)
	}
	if int64(n) > c.Remaining() {
		return nil, jp2err.Truncated(c.pos, int64(n), c.Remaining())
	}
	buf := make([]byte, n)
	got, err := c.r.ReadAt(buf, c.pos)
	if got < n {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read at offset %d: %w", c.pos, err)
		}
		return nil, jp2err.Truncated(c.pos, int64(n), int64(got))
	}
	c.pos += int64(n)
	return buf, nil
}

// ReadRest returns everything up to End()
func (c *Cursor) ReadRest() ([]byte, error) {
	return c.ReadFixed(int(c.Remaining()))
}

// ReadU8 reads a single byte
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.ReadFixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a big-endian uint16
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadFixed(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadU32 reads a big-endian uint32
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadU64 reads a big-endian uint64
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Peek returns up to n bytes without advancing
func (c *Cursor) Peek(n int) []byte {
	if int64(n) > c.Remaining() {
		n = int(c.Remaining())
	}
	buf := make([]byte, n)
	got, _ := c.r.ReadAt(buf, c.pos)
	return buf[:got]
}
