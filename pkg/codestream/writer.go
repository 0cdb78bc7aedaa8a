package codestream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/jpfielding/jp2k.go/pkg/binio"
)

// Writer emits codestream marker segments. It is used to build test
// codestreams and to rewrite main headers.
type Writer struct {
	w *binio.Writer
}

// NewWriter creates a new codestream writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: binio.NewWriter(w)}
}

// WriteMarker writes a bare marker without a length field
func (c *Writer) WriteMarker(m Marker) error {
	return c.w.WriteUint16(uint16(m))
}

// WriteSegment writes marker, length and body. The length counts itself.
func (c *Writer) WriteSegment(m Marker, body []byte) error {
	if len(body)+2 > 0xFFFF {
		return fmt.Errorf("%w: %s body of %d bytes", ErrInvalidLength, m, len(body))
	}
	if err := c.w.WriteUint16(uint16(m)); err != nil {
		return err
	}
	if err := c.w.WriteUint16(uint16(len(body) + 2)); err != nil {
		return err
	}
	return c.w.WriteBytes(body)
}

// WriteSOC writes the Start of Codestream marker
func (c *Writer) WriteSOC() error {
	return c.WriteMarker(MarkerSOC)
}

// WriteSIZ writes the SIZ marker segment
func (c *Writer) WriteSIZ(siz *SIZMarker) error {
	body := binary.BigEndian.AppendUint16(nil, siz.Rsiz)
	for _, v := range []uint32{siz.XSiz, siz.YSiz, siz.XOsiz, siz.YOsiz, siz.XTsiz, siz.YTsiz, siz.XTOsiz, siz.YTOsiz} {
		body = binary.BigEndian.AppendUint32(body, v)
	}
	body = binary.BigEndian.AppendUint16(body, uint16(len(siz.Components)))
	for _, comp := range siz.Components {
		ssiz := byte(comp.Precision - 1)
		if comp.Signed {
			ssiz |= 0x80
		}
		body = append(body, ssiz, byte(comp.XRsiz), byte(comp.YRsiz))
	}
	return c.WriteSegment(MarkerSIZ, body)
}

func appendCodingParams(body []byte, cp *CodingParams, userPrecincts bool) []byte {
	body = append(body, cp.DecompLevels, cp.CodeBlockWidthExp, cp.CodeBlockHeightExp, cp.CodeBlockStyle, byte(cp.Transform))
	if userPrecincts {
		for _, p := range cp.PrecinctSizes {
			body = append(body, byte(log2(p.Height)<<4|log2(p.Width)))
		}
	}
	return body
}

func log2(v int) int {
	if v <= 1 {
		return 0
	}
	return bits.Len(uint(v)) - 1
}

// WriteCOD writes the COD marker segment
func (c *Writer) WriteCOD(cod *CODMarker) error {
	body := []byte{cod.Scod, byte(cod.Progression)}
	body = binary.BigEndian.AppendUint16(body, cod.NumLayers)
	body = append(body, cod.MCT)
	body = appendCodingParams(body, &cod.CodingParams, cod.Scod&CodingStylePrecinctsUser != 0)
	return c.WriteSegment(MarkerCOD, body)
}

func appendComponent(body []byte, comp uint16, csiz int) []byte {
	if csiz > 256 {
		return binary.BigEndian.AppendUint16(body, comp)
	}
	return append(body, byte(comp))
}

// WriteCOC writes a COC marker segment. csiz selects the component index width.
func (c *Writer) WriteCOC(coc *COCMarker, csiz int) error {
	body := appendComponent(nil, coc.Component, csiz)
	body = append(body, coc.Scoc)
	body = appendCodingParams(body, &coc.CodingParams, coc.Scoc&CodingStylePrecinctsUser != 0)
	return c.WriteSegment(MarkerCOC, body)
}

func appendQuantization(body []byte, q *Quantization) []byte {
	body = append(body, q.GuardBits<<5|(q.Sqcd&0x1F))
	for _, s := range q.StepSizes {
		if q.Style() == 0 {
			body = append(body, s.Exponent<<3)
			continue
		}
		body = binary.BigEndian.AppendUint16(body, uint16(s.Exponent)<<11|(s.Mantissa&0x07FF))
	}
	return body
}

// WriteQCD writes the QCD marker segment
func (c *Writer) WriteQCD(qcd *QCDMarker) error {
	return c.WriteSegment(MarkerQCD, appendQuantization(nil, &qcd.Quantization))
}

// WriteQCC writes a QCC marker segment. csiz selects the component index width.
func (c *Writer) WriteQCC(qcc *QCCMarker, csiz int) error {
	body := appendComponent(nil, qcc.Component, csiz)
	return c.WriteSegment(MarkerQCC, appendQuantization(body, &qcc.Quantization))
}

// WriteCOM writes a comment segment
func (c *Writer) WriteCOM(com *COMMarker) error {
	body := binary.BigEndian.AppendUint16(nil, com.Registration)
	return c.WriteSegment(MarkerCOM, append(body, com.Data...))
}

// WriteSOT writes a tile-part header
func (c *Writer) WriteSOT(sot *SOTMarker) error {
	body := binary.BigEndian.AppendUint16(nil, sot.TileIndex)
	body = binary.BigEndian.AppendUint32(body, sot.TilePartLen)
	body = append(body, sot.TilePartIdx, sot.NumTileParts)
	return c.WriteSegment(MarkerSOT, body)
}

// WriteSOD writes the Start of Data marker
func (c *Writer) WriteSOD() error {
	return c.WriteMarker(MarkerSOD)
}

// WriteEOC writes the End of Codestream marker
func (c *Writer) WriteEOC() error {
	return c.WriteMarker(MarkerEOC)
}

// WriteBytes writes raw bytes, e.g. tile data
func (c *Writer) WriteBytes(data []byte) error {
	return c.w.WriteBytes(data)
}

// Flush flushes the underlying buffer
func (c *Writer) Flush() error {
	return c.w.Flush()
}

// BuildDefaultCOD creates a COD marker with 64x64 code-blocks and default precincts
func BuildDefaultCOD(decompLevels int, numLayers int, progression ProgressionOrder, useMCT bool) *CODMarker {
	cod := &CODMarker{
		Progression: progression,
		NumLayers:   uint16(numLayers),
		CodingParams: CodingParams{
			DecompLevels:       byte(decompLevels),
			CodeBlockWidthExp:  4,
			CodeBlockHeightExp: 4,
			Transform:          TransformReversible53,
			PrecinctSizes:      []Precinct{{Width: DefaultPrecinct, Height: DefaultPrecinct}},
		},
	}
	if useMCT {
		cod.MCT = 1
	}
	return cod
}

// BuildDefaultQCD creates a reversible QCD marker with one step per subband
func BuildDefaultQCD(decompLevels int, guardBits int) *QCDMarker {
	// 3*levels + 1 subbands (LL + 3 subbands per level)
	return &QCDMarker{Quantization: Quantization{
		Sqcd:      byte(guardBits) << 5,
		GuardBits: byte(guardBits),
		StepSizes: make([]StepSize, 3*decompLevels+1),
	}}
}

// BuildSIZ creates a SIZ marker from image parameters
func BuildSIZ(width, height int, components []ComponentInfo, tileWidth, tileHeight int) *SIZMarker {
	if tileWidth == 0 {
		tileWidth = width
	}
	if tileHeight == 0 {
		tileHeight = height
	}
	return &SIZMarker{
		XSiz:       uint32(width),
		YSiz:       uint32(height),
		XTsiz:      uint32(tileWidth),
		YTsiz:      uint32(tileHeight),
		Components: components,
	}
}

// UniformComponents returns n unsubsampled components of one precision
func UniformComponents(n, precision int, signed bool) []ComponentInfo {
	comps := make([]ComponentInfo, n)
	for i := range comps {
		comps[i] = ComponentInfo{Precision: precision, Signed: signed, XRsiz: 1, YRsiz: 1}
	}
	return comps
}
