package jp2k

import (
	"fmt"
	"io"
	"os"

	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

// WrapOptions controls Wrap
type WrapOptions struct {
	// ToEnd writes the final jp2c box with the length-0 sentinel
	ToEnd bool
}

// DefaultJacket builds the minimal JP2 box set for the file's codestream:
// signature, file type, a jp2h holding ihdr (plus bpcc when depths differ)
// and an enumerated colr, then jp2c. Every field comes from SIZ.
func (f *File) DefaultJacket() ([]*box.Box, error) {
	p, err := f.Contiguous()
	if err != nil {
		return nil, err
	}
	cs := p.Codestream(true)
	siz := cs.SIZ()
	if siz == nil {
		return nil, fmt.Errorf("deriving the image header: no SIZ segment: %w", jp2err.ErrMalformedBox)
	}
	if len(siz.Components) == 0 || len(siz.Components) > 0xFFFF {
		return nil, jp2err.Invalid("SIZ declares %d components", len(siz.Components))
	}

	ih := &box.ImageHeader{
		Height:        siz.YSiz - siz.YOsiz,
		Width:         siz.XSiz - siz.XOsiz,
		NumComponents: uint16(len(siz.Components)),
		Compression:   box.CompressionWavelet,
	}
	uniform := true
	depths := make([]box.ComponentDepth, len(siz.Components))
	for i, c := range siz.Components {
		depths[i] = box.ComponentDepth{Depth: c.Precision, Signed: c.Signed}
		uniform = uniform && depths[i] == depths[0]
	}
	jp2h := box.NewSuper(box.TypeJP2Header, box.New(box.TypeImageHeader, ih))
	if uniform {
		ih.BitDepth, ih.Signed = depths[0].Depth, depths[0].Signed
	} else {
		jp2h.Children = append(jp2h.Children, box.New(box.TypeBitsPerComp, &box.BitsPerComponent{Components: depths}))
	}
	colourspace := uint32(box.ColourspaceSRGB)
	if len(siz.Components) < 3 {
		colourspace = box.ColourspaceGreyscale
	}
	jp2h.Children = append(jp2h.Children, box.NewColourSpec(colourspace))

	return []*box.Box{
		box.NewSignature(),
		box.NewFileType(),
		jp2h,
		box.New(box.TypeCodestream, p.ClonePayload()),
	}, nil
}

// Wrap writes a JP2 file around the file's codestream. With nil boxes the
// default jacket is used; otherwise the boxes are written as given except
// that every top level jp2c is bound to this file's codestream. The boxes
// are deep copied and never modified. The codestream is streamed from the
// source rather than loaded.
func (f *File) Wrap(w io.Writer, boxes []*box.Box, opts WrapOptions) (int64, error) {
	if boxes == nil {
		jacket, err := f.DefaultJacket()
		if err != nil {
			return 0, err
		}
		boxes = jacket
	}
	p, err := f.Contiguous()
	if err != nil {
		return 0, err
	}

	out := make([]*box.Box, len(boxes))
	for i, b := range boxes {
		out[i] = b.Clone()
		out[i].ToEnd = false
		if out[i].Type == box.TypeCodestream {
			out[i].Payload = p.ClonePayload()
			out[i].Children, out[i].Err = nil, nil
		}
	}
	if err := ValidateJacket(out); err != nil {
		return 0, err
	}
	if opts.ToEnd {
		last := out[len(out)-1]
		if last.Type != box.TypeCodestream {
			return 0, jp2err.Fatal("the length-0 form needs the codestream box last, found %q", last.Type)
		}
		last.ToEnd = true
	}
	return box.Write(w, out)
}

// WrapFile writes the wrapped file to path
func (f *File) WrapFile(path string, boxes []*box.Box, opts WrapOptions) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := f.Wrap(out, boxes, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// ValidateJacket checks a top level box sequence against the JP2 ordering
// rules. Every failure is a fatal ValidationError.
func ValidateJacket(boxes []*box.Box) error {
	if len(boxes) < 2 || boxes[0].Type != box.TypeSignature || boxes[1].Type != box.TypeFileType {
		return jp2err.Fatal("the first box must be the signature box and the second must be the file type box")
	}
	jp2hIdx, jp2cIdx := -1, -1
	for i, b := range boxes {
		switch {
		case b.Type == box.TypeJP2Header && jp2hIdx < 0:
			jp2hIdx = i
		case b.Type == box.TypeCodestream && jp2cIdx < 0:
			jp2cIdx = i
		case b.Type == box.TypeChannelDef:
			return jp2err.Fatal("any channel definition box must be in the JP2 header following the image header")
		}
	}
	if jp2cIdx < 0 {
		return jp2err.Fatal("a codestream box must be defined in the outermost list of boxes")
	}
	if jp2hIdx < 0 || jp2hIdx > jp2cIdx {
		return jp2err.Fatal("the codestream box must be preceded by a jp2 header box")
	}

	jp2h := boxes[jp2hIdx]
	if len(jp2h.Children) == 0 || jp2h.Children[0].Type != box.TypeImageHeader {
		return jp2err.Fatal("the first box in the jp2 header box must be the image header box")
	}
	colr := box.Children(jp2h, box.TypeColourSpec)
	if len(colr) == 0 {
		return jp2err.Fatal("the jp2 header box must contain a colour specification box")
	}
	cdefs := box.Children(jp2h, box.TypeChannelDef)
	if len(cdefs) > 1 {
		return jp2err.Fatal("only one channel definition box is allowed in the JP2 header")
	}
	if len(cdefs) == 1 {
		return checkChannels(colr[0], cdefs[0])
	}
	return nil
}

// checkChannels requires the colour channels of enumerated sRGB and
// greyscale images to be defined
func checkChannels(colr, cdef *box.Box) error {
	cs, ok := colr.Payload.(*box.ColourSpec)
	if !ok || cs.Method != box.MethodEnumerated {
		return nil
	}
	cd, ok := cdef.Payload.(*box.ChannelDef)
	if !ok {
		return nil
	}
	switch cs.Colourspace {
	case box.ColourspaceSRGB:
		for assoc := uint16(1); assoc <= 3; assoc++ {
			found := false
			for _, ch := range cd.Channels {
				if ch.Association == assoc && ch.Type == box.ChannelColour {
					found = true
				}
			}
			if !found {
				return jp2err.Fatal("all colour channels must be defined in the channel definition box")
			}
		}
	case box.ColourspaceGreyscale:
		for _, ch := range cd.Channels {
			if ch.Type == box.ChannelColour {
				return nil
			}
		}
		return jp2err.Fatal("all colour channels must be defined in the channel definition box")
	}
	return nil
}
