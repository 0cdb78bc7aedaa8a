package jp2k

import (
	"log/slog"

	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

func (f *File) warn(err error) {
	slog.Warn("file structure anomaly", "error", err)
	f.Warnings = append(f.Warnings, err)
}

// validate runs the non-fatal structure checks on an opened container
func (f *File) validate() {
	count := map[box.Type]int{}
	for _, b := range f.Boxes {
		count[b.Type]++
	}
	for _, t := range []box.Type{box.TypeJP2Header, box.TypeCodestream} {
		if count[t] > 1 && f.Brand() == box.BrandJP2 {
			f.warn(jp2err.Invalid("%d %q boxes found, a jp2 file has one", count[t], t))
		}
	}

	if f.Brand() == box.BrandJP2 {
		jp2h := first(f.Boxes, box.TypeJP2Header)
		switch {
		case jp2h == nil:
			f.warn(jp2err.Invalid("no JP2 header box"))
		case len(jp2h.Children) == 0 || jp2h.Children[0].Type != box.TypeImageHeader:
			f.warn(jp2err.Invalid("the first box in the JP2 header box must be the image header box"))
		}
		if count[box.TypeCodestream] == 0 {
			f.warn(jp2err.Invalid("no contiguous codestream box"))
		}
		for _, b := range box.FindAll(f.Boxes, box.TypeColourSpec) {
			cs, ok := b.Payload.(*box.ColourSpec)
			if ok && cs.Method != box.MethodEnumerated && cs.Method != box.MethodRestrictedICC {
				f.warn(jp2err.Invalid("colour specification method %d at offset %d is not allowed in a jp2 file", cs.Method, b.Offset))
			}
		}
	}
}

// checkCodestream compares the main header against the image header
func (f *File) checkCodestream() {
	p, err := f.Contiguous()
	if err != nil {
		return
	}
	cs := p.Codestream(true)
	// already logged by the codestream parser
	if cs.Err != nil {
		f.Warnings = append(f.Warnings, cs.Err)
	}
	for _, s := range cs.Segments {
		f.Warnings = append(f.Warnings, s.Errors...)
	}
	siz := cs.SIZ()
	ih := f.ImageHeader()
	if siz == nil || ih == nil {
		return
	}
	height, width := siz.YSiz-siz.YOsiz, siz.XSiz-siz.XOsiz
	if ih.Height != height || ih.Width != width {
		f.warn(jp2err.Invalid("image header size %dx%d does not match the codestream %dx%d", ih.Width, ih.Height, width, height))
	}
	if int(ih.NumComponents) != siz.Csiz() {
		f.warn(jp2err.Invalid("image header declares %d components, the codestream has %d", ih.NumComponents, siz.Csiz()))
	}
}
