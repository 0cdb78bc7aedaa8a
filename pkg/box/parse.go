package box

import (
	"errors"
	"log/slog"
	"math"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

// Parse reads the sequence of boxes between c's position and its end.
// Payload failures degrade a single box to an *Unknown payload and parsing
// continues. An error is returned only when the extent of the next box cannot
// be determined; the boxes read before it are returned with the error.
func Parse(c *binio.Cursor) ([]*Box, error) {
	return parser{log: slog.Default()}.parse(c)
}

// ParseBytes parses a box sequence held in memory
func ParseBytes(data []byte) ([]*Box, error) {
	return Parse(binio.FromBytes(data))
}

// allowedChildren lists the boxes each superbox may hold. Superboxes not
// listed accept any registered box except the file level ones.
var allowedChildren = map[Type]map[Type]bool{
	TypeJP2Header: {TypeImageHeader: true, TypeBitsPerComp: true, TypeColourSpec: true, TypePalette: true,
		TypeComponentMap: true, TypeChannelDef: true, TypeResolution: true},
	TypeResolution:     {TypeCaptureRes: true, TypeDisplayRes: true},
	TypeUUIDInfo:       {TypeUUIDList: true, TypeURL: true},
	TypeCodestreamHdr:  {TypeImageHeader: true, TypeBitsPerComp: true, TypePalette: true, TypeComponentMap: true, TypeChannelDef: true},
	TypeCompositingHdr: {TypeColourGroup: true, TypeResolution: true, TypeOf("opct"): true, TypeOf("creg"): true, TypeLabel: true},
	TypeColourGroup:    {TypeColourSpec: true},
	TypeFragmentTable:  {TypeFragmentList: true},
}

// legalChild reports whether a box of type child may sit inside parent
func legalChild(parent, child Type) bool {
	if set, ok := allowedChildren[parent]; ok {
		return set[child]
	}
	switch child {
	case TypeSignature, TypeFileType, TypeCodestream:
		return false
	}
	_, ok := Lookup(child)
	return ok
}

type parser struct {
	log *slog.Logger
}

func (p parser) parse(c *binio.Cursor) ([]*Box, error) {
	var boxes []*Box
	for c.Remaining() > 0 {
		b, err := p.parseBox(c)
		if err != nil {
			return boxes, err
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

func (p parser) parseBox(c *binio.Cursor) (*Box, error) {
	off := c.Tell()
	if c.Remaining() < 8 {
		return nil, jp2err.Truncated(off, 8, c.Remaining())
	}
	l32, _ := c.ReadU32()
	t, _ := c.ReadU32()
	b := &Box{Type: Type(t), Offset: off}

	hdr := int64(8)
	var length int64
	switch l32 {
	case 0:
		b.ToEnd = true
		length = c.End() - off
	case 1:
		ext, err := c.ReadU64()
		if err != nil {
			return nil, err
		}
		if ext > math.MaxInt64 {
			return nil, jp2err.Malformed(b.Type.String(), off, "extended length %d out of range", ext)
		}
		b.Extended = true
		hdr = 16
		length = int64(ext)
	default:
		length = int64(l32)
	}
	if length < hdr {
		return nil, jp2err.Malformed(b.Type.String(), off, "length %d is smaller than the %d byte header", length, hdr)
	}
	b.Length = length

	end := off + length
	if end > c.End() {
		w := jp2err.Truncated(off+hdr, length-hdr, c.End()-off-hdr)
		b.Warnings = append(b.Warnings, w)
		p.log.Warn("box overruns its enclosing range", "type", b.Type.String(), "offset", off, "length", length, "available", c.End()-off)
		end = c.End()
	}

	payload := c.Bounded(off+hdr, end)
	p.decodeInto(b, payload)

	split := int64(-1)
	switch {
	case b.ToEnd && b.IsSuper():
		// a length-0 superbox swallows its siblings as children; the
		// first child that cannot live there is really a sibling
		for i, child := range b.Children {
			if !legalChild(b.Type, child.Type) {
				split = child.Offset
				b.Children = b.Children[:i]
				break
			}
		}
	case b.ToEnd && !b.Corrupt() && payload.Remaining() >= 8:
		if at := payload.Tell(); p.hidesSiblings(c.Bounded(at, end)) {
			split = at
		}
	case !b.IsSuper() && !b.Corrupt() && payload.Remaining() > 0:
		p.log.Debug("box payload has trailing bytes", "type", b.Type.String(), "offset", off, "bytes", payload.Remaining())
	}
	if split >= 0 {
		// stop the length-0 box where its content ends so the siblings
		// stay visible
		b.ToEnd = false
		b.Length = split - off
		b.Warnings = append(b.Warnings, jp2err.Malformed(b.Type.String(), off,
			"length 0 is only legal on the last box of a sequence"))
		p.log.Warn("length-0 box is not last", "type", b.Type.String(), "offset", off)
		end = split
	}

	if err := c.Seek(end); err != nil {
		return nil, err
	}
	return b, nil
}

// hidesSiblings reports whether c holds a clean sequence of known boxes.
// The look-ahead is silent; the real parse logs whatever it finds.
func (p parser) hidesSiblings(c *binio.Cursor) bool {
	boxes, err := parser{log: slog.New(slog.DiscardHandler)}.parse(c)
	if err != nil || len(boxes) == 0 {
		return false
	}
	for _, b := range boxes {
		if _, ok := Lookup(b.Type); !ok || b.Corrupt() {
			return false
		}
	}
	return true
}

func (p parser) decodeInto(b *Box, payload *binio.Cursor) {
	start := payload.Tell()
	d, ok := Lookup(b.Type)
	if !ok {
		p.log.Warn("unrecognized box", "type", b.Type.String(), "offset", b.Offset)
		data, _ := payload.ReadRest()
		b.Payload = &Unknown{Claimed: b.Type, Data: data}
		return
	}

	if d.Super {
		children, err := p.parse(payload)
		if err != nil {
			p.degrade(b, payload.Bounded(start, payload.End()), err)
			return
		}
		if children == nil {
			children = []*Box{}
		}
		b.Children = children
		return
	}

	if d.Decode == nil {
		data, _ := payload.ReadRest()
		b.Payload = &Unknown{Claimed: b.Type, Data: data}
		return
	}
	pl, err := d.Decode(payload)
	if err != nil {
		p.degrade(b, payload.Bounded(start, payload.End()), err)
		return
	}
	b.Payload = pl
	if v, ok := pl.(Validator); ok {
		for _, w := range v.Validate() {
			p.log.Warn("box field anomaly", "type", b.Type.String(), "offset", b.Offset, "warning", w)
			b.Warnings = append(b.Warnings, w)
		}
	}
}

// degrade keeps the raw payload so the box still round-trips
func (p parser) degrade(b *Box, raw *binio.Cursor, err error) {
	var malformed *jp2err.MalformedBoxError
	if !errors.As(err, &malformed) && !errors.Is(err, jp2err.ErrTruncated) {
		err = jp2err.Malformed(b.Type.String(), b.Offset, "%v", err)
	}
	p.log.Warn("box payload could not be decoded", "type", b.Type.String(), "offset", b.Offset, "error", err)
	data, _ := raw.ReadRest()
	b.Children = nil
	b.Payload = &Unknown{Claimed: b.Type, Data: data}
	b.Err = err
}
