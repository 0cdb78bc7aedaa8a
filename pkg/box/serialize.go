package box

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jpfielding/jp2k.go/pkg/binio"
)

// Streamer is implemented by payloads too large to marshal into memory.
// The serializer copies them straight to the output.
type Streamer interface {
	Size() int64
	WriteTo(w io.Writer) (int64, error)
}

// Write serializes boxes to w and returns the bytes written. Lengths are
// recomputed from the payloads; the extended header is used only when a box
// does not fit the 32-bit length field. The length-0 form is emitted only for
// the last top-level box, and only when its ToEnd is set.
func Write(w io.Writer, boxes []*Box) (int64, error) {
	plans, err := planAll(boxes)
	if err != nil {
		return 0, err
	}
	cw := &binio.CountingWriter{Writer: w}
	bw := binio.NewWriter(cw)
	for i, p := range plans {
		toEnd := i == len(plans)-1 && p.b.ToEnd
		if err := p.write(bw, toEnd); err != nil {
			return cw.Count.Load(), err
		}
	}
	err = bw.Flush()
	return cw.Count.Load(), err
}

// Marshal serializes boxes into memory
func Marshal(boxes ...*Box) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Write(&buf, boxes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size returns the encoded length of b including its header
func Size(b *Box) (int64, error) {
	p, err := plan(b)
	if err != nil {
		return 0, err
	}
	return p.total(), nil
}

// Header returns the header bytes for a box of type t whose total encoded
// length is total. A total of 0 writes the to-end sentinel.
func Header(t Type, total int64) []byte {
	if total > math.MaxUint32 {
		h := binary.BigEndian.AppendUint32(nil, 1)
		h = binary.BigEndian.AppendUint32(h, uint32(t))
		return binary.BigEndian.AppendUint64(h, uint64(total))
	}
	h := binary.BigEndian.AppendUint32(nil, uint32(total))
	return binary.BigEndian.AppendUint32(h, uint32(t))
}

type boxPlan struct {
	b          *Box
	data       []byte
	stream     Streamer
	children   []*boxPlan
	payloadLen int64
}

func planAll(boxes []*Box) ([]*boxPlan, error) {
	plans := make([]*boxPlan, 0, len(boxes))
	for _, b := range boxes {
		p, err := plan(b)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func plan(b *Box) (*boxPlan, error) {
	p := &boxPlan{b: b}
	switch pl := b.Payload.(type) {
	case nil:
		children, err := planAll(b.Children)
		if err != nil {
			return nil, err
		}
		p.children = children
		for _, c := range children {
			p.payloadLen += c.total()
		}
	case Streamer:
		p.stream = pl
		p.payloadLen = pl.Size()
	default:
		data, err := pl.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding %q box: %w", b.Type, err)
		}
		p.data = data
		p.payloadLen = int64(len(data))
	}
	return p, nil
}

func (p *boxPlan) total() int64 {
	if p.payloadLen+8 > math.MaxUint32 {
		return p.payloadLen + 16
	}
	return p.payloadLen + 8
}

func (p *boxPlan) write(w *binio.Writer, toEnd bool) error {
	total := p.total()
	if toEnd && total <= math.MaxUint32 {
		total = 0
	}
	if err := w.WriteBytes(Header(p.b.Type, total)); err != nil {
		return err
	}
	switch {
	case p.stream != nil:
		n, err := p.stream.WriteTo(w)
		if err != nil {
			return fmt.Errorf("copying %q payload: %w", p.b.Type, err)
		}
		if n != p.payloadLen {
			return fmt.Errorf("copying %q payload: wrote %d of %d bytes", p.b.Type, n, p.payloadLen)
		}
	case p.children != nil:
		for _, c := range p.children {
			if err := c.write(w, false); err != nil {
				return err
			}
		}
	default:
		return w.WriteBytes(p.data)
	}
	return nil
}
