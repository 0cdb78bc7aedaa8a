package binio

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync/atomic"
)

// Writer provides big-endian writes with buffering
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a new big-endian writer
func NewWriter(w io.Writer) *Writer {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Writer{w: bw}
}

// Write implements io.Writer
func (b *Writer) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

// WriteByte writes a single byte
func (b *Writer) WriteByte(c byte) error {
	return b.w.WriteByte(c)
}

// WriteUint16 writes a big-endian uint16
func (b *Writer) WriteUint16(v uint16) error {
	_, err := b.w.Write(binary.BigEndian.AppendUint16(nil, v))
	return err
}

// WriteUint32 writes a big-endian uint32
func (b *Writer) WriteUint32(v uint32) error {
	_, err := b.w.Write(binary.BigEndian.AppendUint32(nil, v))
	return err
}

// WriteUint64 writes a big-endian uint64
func (b *Writer) WriteUint64(v uint64) error {
	_, err := b.w.Write(binary.BigEndian.AppendUint64(nil, v))
	return err
}

// WriteBytes writes multiple bytes
func (b *Writer) WriteBytes(data []byte) error {
	_, err := b.w.Write(data)
	return err
}

// ReadFrom copies r through the buffer
func (b *Writer) ReadFrom(r io.Reader) (int64, error) {
	return b.w.ReadFrom(r)
}

// Flush flushes the buffer
func (b *Writer) Flush() error {
	return b.w.Flush()
}

// CountingWriter tracks bytes successfully written through it
type CountingWriter struct {
	Count  atomic.Int64
	Writer io.Writer
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.Writer.Write(p)
	if err == nil {
		c.Count.Add(int64(n))
	}
	return n, err
}
