package box

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/codestream"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// Contiguous is the jp2c box payload. It refers to the codestream bytes in
// their source instead of holding them, and parses them on first use.
type Contiguous struct {
	Source io.ReaderAt `json:"-"`
	Offset int64       `json:"offset"` // absolute offset of the SOC marker
	Length int64       `json:"length"`

	mu     sync.Mutex
	header *codestream.Codestream
	full   *codestream.Codestream
}

// NewContiguous refers to length bytes of r starting at offset
func NewContiguous(r io.ReaderAt, offset, length int64) *Contiguous {
	return &Contiguous{Source: r, Offset: offset, Length: length}
}

func decodeCodestream(c *binio.Cursor) (Payload, error) {
	p := NewContiguous(c.Source(), c.Tell(), c.Remaining())
	return p, c.Seek(c.End())
}

// Size implements Streamer
func (p *Contiguous) Size() int64 {
	return p.Length
}

// WriteTo copies the codestream bytes from their source
func (p *Contiguous) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, p.Reader())
}

// Reader returns a reader over the codestream bytes
func (p *Contiguous) Reader() *io.SectionReader {
	return io.NewSectionReader(p.Source, p.Offset, p.Length)
}

// MarshalBinary reads the whole codestream into memory
func (p *Contiguous) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.Length)
	if _, err := io.ReadFull(p.Reader(), buf); err != nil {
		return nil, fmt.Errorf("reading codestream: %w", err)
	}
	return buf, nil
}

// ClonePayload shares the source but not the parse cache
func (p *Contiguous) ClonePayload() Payload {
	return NewContiguous(p.Source, p.Offset, p.Length)
}

// Codestream parses the codestream, once per mode
func (p *Contiguous) Codestream(headerOnly bool) *codestream.Codestream {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := &p.full
	if headerOnly {
		slot = &p.header
	}
	if *slot == nil {
		*slot = codestream.Parse(binio.NewCursor(p.Source, p.Offset+p.Length).Bounded(p.Offset, p.Offset+p.Length), headerOnly)
	}
	return *slot
}

// Reset drops the cached parses
func (p *Contiguous) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header, p.full = nil, nil
}

func (p *Contiguous) Describe(o options.Options) []string {
	if !o.PrintCodestream {
		return nil
	}
	return strings.Split(p.Codestream(!o.ParseFullCodestream).String(), "\n")
}
