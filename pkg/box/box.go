package box

import (
	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// Box is one node of the container tree. Superboxes own Children and have a
// nil Payload; leaf boxes have a Payload. A box whose payload could not be
// decoded carries an *Unknown payload with its original bytes and sets Err.
type Box struct {
	Type     Type
	Offset   int64 // absolute offset of the header, 0 for constructed boxes
	Length   int64 // total length including the header as found on disk
	ToEnd    bool  // length field is the 0 sentinel
	Extended bool  // header uses the 8-byte length form
	Payload  Payload
	Children []*Box
	Err      error   // payload decode failure, the box is corrupt
	Warnings []error // non-fatal anomalies found while parsing
}

// New builds a leaf box around a payload
func New(t Type, p Payload) *Box {
	return &Box{Type: t, Payload: p}
}

// NewSuper builds a superbox around its children
func NewSuper(t Type, children ...*Box) *Box {
	return &Box{Type: t, Children: children}
}

// IsSuper reports whether the box holds child boxes
func (b *Box) IsSuper() bool {
	return b.Payload == nil
}

// Corrupt reports whether the payload failed to decode
func (b *Box) Corrupt() bool {
	return b.Err != nil
}

// HeaderSize returns 8, or 16 with the extended length form
func (b *Box) HeaderSize() int64 {
	if b.Extended {
		return 16
	}
	return 8
}

// Name returns the registered long name of the box type
func (b *Box) Name() string {
	if b.Corrupt() {
		return "Unknown"
	}
	if d, ok := Lookup(b.Type); ok {
		return d.Name
	}
	return "Unknown"
}

// String renders the box with the current global options
func (b *Box) String() string {
	return Format(b, options.Get())
}

// Clone deep-copies the tree below b. Payloads are copied by re-decoding
// their encoded form unless they implement Cloner.
func (b *Box) Clone() *Box {
	if b == nil {
		return nil
	}
	out := *b
	out.Children = nil
	for _, c := range b.Children {
		out.Children = append(out.Children, c.Clone())
	}
	out.Payload = clonePayload(b.Type, b.Payload)
	return &out
}

// Cloner is implemented by payloads that are cheaper to copy directly
type Cloner interface {
	ClonePayload() Payload
}

func clonePayload(t Type, p Payload) Payload {
	if p == nil {
		return nil
	}
	if c, ok := p.(Cloner); ok {
		return c.ClonePayload()
	}
	data, err := p.MarshalBinary()
	if err != nil {
		return p
	}
	d, ok := Lookup(t)
	if !ok || d.Decode == nil {
		return &Unknown{Data: data}
	}
	cp, err := d.Decode(binio.FromBytes(data))
	if err != nil {
		return p
	}
	return cp
}

// Find returns the first box of type t in a depth-first walk of boxes
func Find(boxes []*Box, t Type) *Box {
	for _, b := range boxes {
		if b.Type == t {
			return b
		}
		if found := Find(b.Children, t); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every box of type t in depth-first order
func FindAll(boxes []*Box, t Type) []*Box {
	var out []*Box
	Walk(boxes, func(b *Box) {
		if b.Type == t {
			out = append(out, b)
		}
	})
	return out
}

// Walk visits every box in depth-first order
func Walk(boxes []*Box, fn func(*Box)) {
	for _, b := range boxes {
		fn(b)
		Walk(b.Children, fn)
	}
}

// Children returns the direct children of type t
func Children(b *Box, t Type) []*Box {
	var out []*Box
	for _, c := range b.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}
