package box

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// CompressionWavelet is the only ihdr compression type Part-1 defines
const CompressionWavelet = 7

// ImageHeader is the ihdr box payload
type ImageHeader struct {
	Height        uint32
	Width         uint32
	NumComponents uint16
	BitDepth      int // 0 when depths vary and a bpcc box is present
	Signed        bool
	Compression   byte
	// ColourspaceUnknown is set when the colr box may not be accurate
	ColourspaceUnknown bool
	IPR                bool // an Intellectual Property box is present
}

func decodeImageHeader(c *binio.Cursor) (Payload, error) {
	b, err := c.ReadFixed(14)
	if err != nil {
		return nil, err
	}
	ih := &ImageHeader{
		Height:             binary.BigEndian.Uint32(b[0:4]),
		Width:              binary.BigEndian.Uint32(b[4:8]),
		NumComponents:      binary.BigEndian.Uint16(b[8:10]),
		Compression:        b[11],
		ColourspaceUnknown: b[12] != 0,
		IPR:                b[13] != 0,
	}
	if b[10] != 0xFF {
		ih.BitDepth = int(b[10]&0x7F) + 1
		ih.Signed = b[10]&0x80 != 0
	}
	return ih, nil
}

func (ih *ImageHeader) MarshalBinary() ([]byte, error) {
	out := binary.BigEndian.AppendUint32(nil, ih.Height)
	out = binary.BigEndian.AppendUint32(out, ih.Width)
	out = binary.BigEndian.AppendUint16(out, ih.NumComponents)
	bpc := byte(0xFF)
	if ih.BitDepth > 0 {
		bpc = byte(ih.BitDepth-1) & 0x7F
		if ih.Signed {
			bpc |= 0x80
		}
	}
	return append(out, bpc, ih.Compression, boolByte(ih.ColourspaceUnknown), boolByte(ih.IPR)), nil
}

func (ih *ImageHeader) Describe(options.Options) []string {
	depth := fmt.Sprint(ih.BitDepth)
	if ih.BitDepth == 0 {
		depth = "varies"
	}
	compression := "unknown"
	if ih.Compression == CompressionWavelet {
		compression = "wavelet"
	}
	return []string{
		fmt.Sprintf("Size:  [%d %d %d]", ih.Height, ih.Width, ih.NumComponents),
		"Bitdepth:  " + depth,
		fmt.Sprintf("Signed:  %t", ih.Signed),
		"Compression:  " + compression,
		fmt.Sprintf("Colorspace Unknown:  %t", ih.ColourspaceUnknown),
	}
}

func (ih *ImageHeader) Validate() []error {
	var errs []error
	if ih.Compression != CompressionWavelet {
		errs = append(errs, jp2err.Unrecognized("ihdr compression type", int64(ih.Compression)))
	}
	if ih.NumComponents == 0 {
		errs = append(errs, jp2err.Invalid("ihdr declares zero components"))
	}
	return errs
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// ComponentDepth is a bit depth and signedness packed into one byte
type ComponentDepth struct {
	Depth  int
	Signed bool
}

func unpackDepth(b byte) ComponentDepth {
	return ComponentDepth{Depth: int(b&0x7F) + 1, Signed: b&0x80 != 0}
}

func (d ComponentDepth) pack() byte {
	b := byte(d.Depth-1) & 0x7F
	if d.Signed {
		b |= 0x80
	}
	return b
}

// BitsPerComponent is the bpcc box payload
type BitsPerComponent struct {
	Components []ComponentDepth
}

func decodeBitsPerComp(c *binio.Cursor) (Payload, error) {
	rest, err := c.ReadRest()
	if err != nil {
		return nil, err
	}
	bp := &BitsPerComponent{}
	for _, b := range rest {
		bp.Components = append(bp.Components, unpackDepth(b))
	}
	return bp, nil
}

func (bp *BitsPerComponent) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(bp.Components))
	for i, d := range bp.Components {
		out[i] = d.pack()
	}
	return out, nil
}

func (bp *BitsPerComponent) Describe(options.Options) []string {
	depths := make([]string, len(bp.Components))
	signed := make([]string, len(bp.Components))
	for i, d := range bp.Components {
		depths[i] = fmt.Sprint(d.Depth)
		signed[i] = fmt.Sprint(d.Signed)
	}
	return []string{
		"Bits per component:  (" + strings.Join(depths, ", ") + ")",
		"Signed:  (" + strings.Join(signed, ", ") + ")",
	}
}

// Colour specification methods
const (
	MethodEnumerated    = 1
	MethodRestrictedICC = 2
	MethodAnyICC        = 3
	MethodVendor        = 4
)

// Enumerated colourspaces
const (
	ColourspaceCMYK      = 12
	ColourspaceSRGB      = 16
	ColourspaceGreyscale = 17
	ColourspaceSYCC      = 18
	ColourspaceESRGB     = 20
	ColourspaceROMMRGB   = 21
)

var methodNames = map[byte]string{
	MethodEnumerated:    "enumerated colorspace",
	MethodRestrictedICC: "restricted ICC profile",
	MethodAnyICC:        "any ICC profile",
	MethodVendor:        "vendor color method",
}

var approximationNames = map[byte]string{
	0: "JP2 only",
	1: "accurately represents correct colorspace definition",
	2: "approximates correct colorspace definition, exceptional quality",
	3: "approximates correct colorspace definition, reasonable quality",
	4: "approximates correct colorspace definition, poor quality",
}

var colourspaceNames = map[uint32]string{
	ColourspaceCMYK:      "CMYK",
	ColourspaceSRGB:      "sRGB",
	ColourspaceGreyscale: "greyscale",
	ColourspaceSYCC:      "YCC",
	ColourspaceESRGB:     "e-sRGB",
	ColourspaceROMMRGB:   "ROMM-RGB",
}

// ColourSpec is the colr box payload. Enumerated specifications carry
// Colourspace; every other method keeps its bytes in Profile.
type ColourSpec struct {
	Method        byte
	Precedence    byte
	Approximation byte
	Colourspace   uint32
	Profile       []byte
}

// NewColourSpec returns an enumerated colr box
func NewColourSpec(colourspace uint32) *Box {
	return New(TypeColourSpec, &ColourSpec{Method: MethodEnumerated, Colourspace: colourspace})
}

func decodeColourSpec(c *binio.Cursor) (Payload, error) {
	b, err := c.ReadFixed(3)
	if err != nil {
		return nil, err
	}
	cs := &ColourSpec{Method: b[0], Precedence: b[1], Approximation: b[2]}
	if cs.Method == MethodEnumerated {
		if cs.Colourspace, err = c.ReadU32(); err != nil {
			return nil, err
		}
		return cs, nil
	}
	cs.Profile, err = c.ReadRest()
	return cs, err
}

func (cs *ColourSpec) MarshalBinary() ([]byte, error) {
	out := []byte{cs.Method, cs.Precedence, cs.Approximation}
	if cs.Method == MethodEnumerated {
		return binary.BigEndian.AppendUint32(out, cs.Colourspace), nil
	}
	return append(out, cs.Profile...), nil
}

func (cs *ColourSpec) Describe(options.Options) []string {
	method, ok := methodNames[cs.Method]
	if !ok {
		method = fmt.Sprintf("unrecognized (raw value %d)", cs.Method)
	}
	out := []string{
		"Method:  " + method,
		fmt.Sprintf("Precedence:  %d", cs.Precedence),
	}
	if cs.Approximation != 0 {
		approx, ok := approximationNames[cs.Approximation]
		if !ok {
			approx = fmt.Sprintf("unrecognized (raw value %d)", cs.Approximation)
		}
		out = append(out, "Approximation:  "+approx)
	}
	switch {
	case cs.Method == MethodEnumerated:
		out = append(out, "Colorspace:  "+cs.ColourspaceName())
	case cs.Method == MethodRestrictedICC || cs.Method == MethodAnyICC:
		h, err := ParseICCHeader(cs.Profile)
		if err != nil {
			out = append(out, "ICC Profile:  "+err.Error())
			break
		}
		out = append(out, "ICC Profile:")
		for _, l := range h.lines() {
			out = append(out, indent+l)
		}
	default:
		out = append(out, fmt.Sprintf("Vendor data:  %d bytes", len(cs.Profile)))
	}
	return out
}

// ColourspaceName returns the display name of an enumerated colourspace
func (cs *ColourSpec) ColourspaceName() string {
	if name, ok := colourspaceNames[cs.Colourspace]; ok {
		return name
	}
	return fmt.Sprintf("unrecognized (raw value %d)", cs.Colourspace)
}

func (cs *ColourSpec) Validate() []error {
	var errs []error
	if _, ok := methodNames[cs.Method]; !ok {
		errs = append(errs, jp2err.Unrecognized("colour specification method", int64(cs.Method)))
	}
	if _, ok := approximationNames[cs.Approximation]; !ok {
		errs = append(errs, jp2err.Unrecognized("colour approximation", int64(cs.Approximation)))
	}
	if cs.Method == MethodEnumerated {
		if _, ok := colourspaceNames[cs.Colourspace]; !ok {
			errs = append(errs, jp2err.Unrecognized("enumerated colourspace", int64(cs.Colourspace)))
		}
	}
	if (cs.Method == MethodRestrictedICC || cs.Method == MethodAnyICC) && len(cs.Profile) < iccHeaderSize {
		errs = append(errs, jp2err.Invalid("ICC profile of %d bytes is shorter than its %d byte header", len(cs.Profile), iccHeaderSize))
	}
	return errs
}

// Palette is the pclr box payload. Entries holds NE rows of NPC values.
type Palette struct {
	Columns []ComponentDepth
	Entries [][]uint32
}

func (p *Palette) columnBytes(i int) int {
	return (p.Columns[i].Depth + 7) / 8
}

func decodePalette(c *binio.Cursor) (Payload, error) {
	ne, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	npc, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	p := &Palette{}
	depths, err := c.ReadFixed(int(npc))
	if err != nil {
		return nil, err
	}
	for _, b := range depths {
		d := unpackDepth(b)
		if d.Depth > 32 {
			return nil, fmt.Errorf("palette column depth %d exceeds 32 bits", d.Depth)
		}
		p.Columns = append(p.Columns, d)
	}
	rowBytes := 0
	for i := range p.Columns {
		rowBytes += p.columnBytes(i)
	}
	if need := int64(ne) * int64(rowBytes); c.Remaining() < need {
		return nil, jp2err.Truncated(c.Tell(), need, c.Remaining())
	}
	p.Entries = make([][]uint32, ne)
	for r := range p.Entries {
		row := make([]uint32, npc)
		for i := range row {
			b, _ := c.ReadFixed(p.columnBytes(i))
			var v uint32
			for _, x := range b {
				v = v<<8 | uint32(x)
			}
			row[i] = v
		}
		p.Entries[r] = row
	}
	return p, nil
}

func (p *Palette) MarshalBinary() ([]byte, error) {
	if len(p.Columns) > 255 || len(p.Entries) > math.MaxUint16 {
		return nil, fmt.Errorf("palette of %d x %d is too large", len(p.Entries), len(p.Columns))
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(len(p.Entries)))
	out = append(out, byte(len(p.Columns)))
	for _, d := range p.Columns {
		out = append(out, d.pack())
	}
	for r, row := range p.Entries {
		if len(row) != len(p.Columns) {
			return nil, fmt.Errorf("palette row %d has %d values for %d columns", r, len(row), len(p.Columns))
		}
		for i, v := range row {
			n := p.columnBytes(i)
			for k := n - 1; k >= 0; k-- {
				out = append(out, byte(v>>(8*k)))
			}
		}
	}
	return out, nil
}

func (p *Palette) Describe(options.Options) []string {
	return []string{fmt.Sprintf("Size:  (%d x %d)", len(p.Entries), len(p.Columns))}
}

// ComponentMapping is one cmap entry
type ComponentMapping struct {
	Component uint16
	Type      byte // 0 direct use, 1 palette mapping
	Column    byte
}

// ComponentMap is the cmap box payload
type ComponentMap struct {
	Mappings []ComponentMapping
}

func decodeComponentMap(c *binio.Cursor) (Payload, error) {
	if c.Remaining()%4 != 0 {
		return nil, fmt.Errorf("component mapping payload of %d bytes is not a multiple of 4", c.Remaining())
	}
	cm := &ComponentMap{}
	for c.Remaining() > 0 {
		var m ComponentMapping
		m.Component, _ = c.ReadU16()
		m.Type, _ = c.ReadU8()
		m.Column, _ = c.ReadU8()
		cm.Mappings = append(cm.Mappings, m)
	}
	return cm, nil
}

func (cm *ComponentMap) MarshalBinary() ([]byte, error) {
	var out []byte
	for _, m := range cm.Mappings {
		out = binary.BigEndian.AppendUint16(out, m.Component)
		out = append(out, m.Type, m.Column)
	}
	return out, nil
}

func (cm *ComponentMap) Describe(options.Options) []string {
	out := make([]string, len(cm.Mappings))
	for k, m := range cm.Mappings {
		if m.Type == 1 {
			out[k] = fmt.Sprintf("Component %d ==> palette column %d", m.Component, m.Column)
		} else {
			out[k] = fmt.Sprintf("Component %d ==> %d", m.Component, k)
		}
	}
	return out
}

// Channel types
const (
	ChannelColour                 = 0
	ChannelOpacity                = 1
	ChannelPremultipliedOpacity   = 2
	ChannelUnspecified            = 65535
	AssociationWholeImage         = 0
	AssociationUnspecified uint16 = 65535
)

var channelTypeNames = map[uint16]string{
	ChannelColour:               "color",
	ChannelOpacity:              "opacity",
	ChannelPremultipliedOpacity: "pre-multiplied opacity",
	ChannelUnspecified:          "unspecified",
}

// Channel is one cdef entry
type Channel struct {
	Index       uint16
	Type        uint16
	Association uint16
}

// ChannelDef is the cdef box payload
type ChannelDef struct {
	Channels []Channel
}

func decodeChannelDef(c *binio.Cursor) (Payload, error) {
	n, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	if need := int64(n) * 6; c.Remaining() < need {
		return nil, jp2err.Truncated(c.Tell(), need, c.Remaining())
	}
	cd := &ChannelDef{Channels: make([]Channel, n)}
	for i := range cd.Channels {
		ch := &cd.Channels[i]
		ch.Index, _ = c.ReadU16()
		ch.Type, _ = c.ReadU16()
		ch.Association, _ = c.ReadU16()
	}
	return cd, nil
}

func (cd *ChannelDef) MarshalBinary() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(cd.Channels)))
	for _, ch := range cd.Channels {
		out = binary.BigEndian.AppendUint16(out, ch.Index)
		out = binary.BigEndian.AppendUint16(out, ch.Type)
		out = binary.BigEndian.AppendUint16(out, ch.Association)
	}
	return out, nil
}

func (cd *ChannelDef) Describe(options.Options) []string {
	out := make([]string, len(cd.Channels))
	for i, ch := range cd.Channels {
		typ, ok := channelTypeNames[ch.Type]
		if !ok {
			typ = fmt.Sprintf("unrecognized (raw value %d)", ch.Type)
		}
		assoc := "whole image"
		if ch.Association != AssociationWholeImage {
			assoc = fmt.Sprint(ch.Association)
		}
		out[i] = fmt.Sprintf("Channel %d (%s) ==> (%s)", ch.Index, typ, assoc)
	}
	return out
}

func (cd *ChannelDef) Validate() []error {
	var errs []error
	seen := map[uint16]bool{}
	for _, ch := range cd.Channels {
		if _, ok := channelTypeNames[ch.Type]; !ok {
			errs = append(errs, jp2err.Unrecognized("channel type", int64(ch.Type)))
		}
		if seen[ch.Index] {
			errs = append(errs, jp2err.Invalid("channel %d is defined more than once", ch.Index))
		}
		seen[ch.Index] = true
	}
	return errs
}

// Resolution is the resc and resd box payload. Each axis is stored as
// numerator, denominator and a base-10 exponent in samples per metre.
type Resolution struct {
	VerticalNum, VerticalDen     uint16
	HorizontalNum, HorizontalDen uint16
	VerticalExp, HorizontalExp   int8
}

func decodeResolution(c *binio.Cursor) (*Resolution, error) {
	b, err := c.ReadFixed(10)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		VerticalNum:   binary.BigEndian.Uint16(b[0:2]),
		VerticalDen:   binary.BigEndian.Uint16(b[2:4]),
		HorizontalNum: binary.BigEndian.Uint16(b[4:6]),
		HorizontalDen: binary.BigEndian.Uint16(b[6:8]),
		VerticalExp:   int8(b[8]),
		HorizontalExp: int8(b[9]),
	}, nil
}

func (r *Resolution) MarshalBinary() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, r.VerticalNum)
	out = binary.BigEndian.AppendUint16(out, r.VerticalDen)
	out = binary.BigEndian.AppendUint16(out, r.HorizontalNum)
	out = binary.BigEndian.AppendUint16(out, r.HorizontalDen)
	return append(out, byte(r.VerticalExp), byte(r.HorizontalExp)), nil
}

// Vertical returns the vertical resolution, NaN for a zero denominator
func (r *Resolution) Vertical() float64 {
	return ratio(r.VerticalNum, r.VerticalDen, r.VerticalExp)
}

// Horizontal returns the horizontal resolution, NaN for a zero denominator
func (r *Resolution) Horizontal() float64 {
	return ratio(r.HorizontalNum, r.HorizontalDen, r.HorizontalExp)
}

func ratio(num, den uint16, exp int8) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den) * math.Pow10(int(exp))
}

// CaptureResolution is the resc box payload
type CaptureResolution struct {
	Resolution
}

// DisplayResolution is the resd box payload
type DisplayResolution struct {
	Resolution
}

func decodeCaptureRes(c *binio.Cursor) (Payload, error) {
	r, err := decodeResolution(c)
	if err != nil {
		return nil, err
	}
	return &CaptureResolution{Resolution: *r}, nil
}

func decodeDisplayRes(c *binio.Cursor) (Payload, error) {
	r, err := decodeResolution(c)
	if err != nil {
		return nil, err
	}
	return &DisplayResolution{Resolution: *r}, nil
}

func (r *CaptureResolution) Describe(options.Options) []string {
	return []string{
		fmt.Sprintf("VCR:  %g", r.Vertical()),
		fmt.Sprintf("HCR:  %g", r.Horizontal()),
	}
}

func (r *DisplayResolution) Describe(options.Options) []string {
	return []string{
		fmt.Sprintf("VDR:  %g", r.Vertical()),
		fmt.Sprintf("HDR:  %g", r.Horizontal()),
	}
}

func (r *Resolution) Validate() []error {
	var errs []error
	if r.VerticalDen == 0 {
		errs = append(errs, jp2err.Invalid("vertical resolution has a zero denominator"))
	}
	if r.HorizontalDen == 0 {
		errs = append(errs, jp2err.Invalid("horizontal resolution has a zero denominator"))
	}
	return errs
}
