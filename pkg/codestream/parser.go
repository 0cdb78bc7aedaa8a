package codestream

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

// Common errors
var (
	ErrInvalidMarker  = errors.New("invalid marker")
	ErrInvalidLength  = errors.New("invalid segment length")
	ErrInvalidSIZ     = errors.New("invalid SIZ marker")
	ErrInvalidCOD     = errors.New("invalid COD marker")
	ErrInvalidQCD     = errors.New("invalid QCD marker")
	ErrInvalidSOT     = errors.New("invalid SOT marker")
	ErrComponentIndex = errors.New("component index out of range")
)

// Parse reads marker segments from c, which must be positioned on the SOC
// marker and bounded to the end of the codestream. In header-only mode
// parsing stops at the first SOT. Per-segment problems are recorded on the
// segment; only problems that hide the extent of the next segment stop the
// parse, and those are recorded in Codestream.Err.
func Parse(c *binio.Cursor, headerOnly bool) *Codestream {
	p := &parser{
		c:    c,
		csiz: -1,
		coc:  map[uint16]*CodingParams{},
		cs: &Codestream{
			Offset:     c.Tell(),
			Length:     c.Remaining(),
			HeaderOnly: headerOnly,
		},
	}
	p.cs.Err = p.run(headerOnly)
	for _, s := range p.cs.Segments {
		for _, err := range s.Errors {
			slog.Warn("codestream segment anomaly", "marker", s.Marker.String(), "offset", s.Offset, "error", err)
		}
	}
	if p.cs.Err != nil {
		slog.Warn("codestream parsing stopped early", "offset", p.cs.Offset, "error", p.cs.Err)
	}
	return p.cs
}

// ParseBytes parses a codestream held in memory
func ParseBytes(data []byte, headerOnly bool) *Codestream {
	return Parse(binio.FromBytes(data), headerOnly)
}

type parser struct {
	c    *binio.Cursor
	cs   *Codestream
	csiz int // -1 until SIZ is seen
	cod  *CODMarker
	coc  map[uint16]*CodingParams

	tileOffset int64
	tileLength int64
	inTile     bool
}

func (p *parser) run(headerOnly bool) error {
	start := p.c.Tell()
	m, err := p.c.ReadU16()
	if err != nil {
		return fmt.Errorf("reading SOC: %w", err)
	}
	if Marker(m) != MarkerSOC {
		return fmt.Errorf("%w: expected SOC (0x%04X), got 0x%04X", ErrInvalidMarker, MarkerSOC, m)
	}
	p.cs.Segments = append(p.cs.Segments, &Segment{Marker: MarkerSOC, Offset: start})

	for {
		off := p.c.Tell()
		if p.c.Remaining() == 0 {
			return fmt.Errorf("codestream ended at offset %d without EOC: %w", off, jp2err.ErrTruncated)
		}
		raw, err := p.c.ReadU16()
		if err != nil {
			return fmt.Errorf("reading marker: %w", err)
		}
		if raw < 0xFF00 {
			return fmt.Errorf("%w: 0x%04x at offset %d, must be at least 0xff00", ErrInvalidMarker, raw, off)
		}
		m := Marker(raw)

		if m == MarkerSOT && p.cs.HeaderLength == 0 {
			p.cs.HeaderLength = off - p.cs.Offset
		}
		if m == MarkerSOT && headerOnly {
			// the main header is everything before the first tile part
			return nil
		}

		if !m.HasLength() {
			seg := &Segment{Marker: m, Offset: off}
			p.cs.Segments = append(p.cs.Segments, seg)
			switch m {
			case MarkerEOC:
				return nil
			case MarkerSOD:
				if err := p.skipTileData(seg, headerOnly); err != nil {
					return err
				}
			}
			continue
		}

		length, err := p.c.ReadU16()
		if err != nil {
			return fmt.Errorf("reading %s length: %w", m, err)
		}
		if length < 2 {
			return fmt.Errorf("%w: %s at offset %d declares %d bytes", ErrInvalidLength, m, off, length)
		}
		seg := &Segment{Marker: m, Offset: off, Length: int(length)}
		p.cs.Segments = append(p.cs.Segments, seg)

		bodyStart := p.c.Tell()
		bodyEnd := bodyStart + int64(length) - 2
		if bodyEnd > p.c.End() {
			have := p.c.End() - bodyStart
			seg.Errors = append(seg.Errors, jp2err.Truncated(bodyStart, int64(length)-2, have))
			seg.Data, _ = p.c.ReadRest()
			return fmt.Errorf("%s segment at offset %d overruns the codestream: %w", m, off, jp2err.ErrTruncated)
		}

		p.decode(seg, p.c.Bounded(bodyStart, bodyEnd))
		if err := p.c.Seek(bodyEnd); err != nil {
			return err
		}
	}
}

// decode fills in seg.Body, degrading to raw data when the body is unreadable
func (p *parser) decode(seg *Segment, c *binio.Cursor) {
	var (
		body  Body
		err   error
		start = c.Tell()
	)
	switch seg.Marker {
	case MarkerSIZ:
		body, err = p.parseSIZ(seg, c)
	case MarkerCOD:
		body, err = p.parseCOD(seg, c)
	case MarkerCOC:
		body, err = p.parseCOC(seg, c)
	case MarkerQCD:
		body, err = p.parseQCD(seg, c)
	case MarkerQCC:
		body, err = p.parseQCC(seg, c)
	case MarkerRGN:
		body, err = p.parseRGN(seg, c)
	case MarkerPOC:
		body, err = p.parsePOC(c)
	case MarkerTLM:
		body, err = parseTLM(c)
	case MarkerPLT:
		body, err = parsePLT(seg, c)
	case MarkerPPM:
		body, err = parsePPM(c)
	case MarkerPPT:
		body, err = parsePPT(c)
	case MarkerCRG:
		body, err = p.parseCRG(seg, c)
	case MarkerCOM:
		body, err = parseCOM(seg, c)
	case MarkerSOT:
		body, err = p.parseSOT(seg, c)
	default:
		// CAP, PLM and the reserved range keep their bytes verbatim
		slog.Debug("reserved codestream segment", "marker", seg.Marker.String(), "offset", seg.Offset)
		seg.Data, err = c.ReadRest()
		if err != nil {
			seg.Errors = append(seg.Errors, err)
		}
		return
	}
	if err != nil {
		seg.Errors = append(seg.Errors, err)
		seg.Data, _ = c.Bounded(start, c.End()).ReadRest()
		return
	}
	seg.Body = body
}

func (p *parser) componentBytes() int {
	if p.csiz > 256 {
		return 2
	}
	return 1
}

func (p *parser) readComponent(c *binio.Cursor) (uint16, error) {
	if p.componentBytes() == 2 {
		return c.ReadU16()
	}
	v, err := c.ReadU8()
	return uint16(v), err
}

func (p *parser) checkComponent(seg *Segment, comp uint16) {
	if p.csiz >= 0 && int(comp) >= p.csiz {
		seg.Errors = append(seg.Errors, fmt.Errorf("%w: %s references component %d but the image has %d",
			ErrComponentIndex, seg.Marker, comp, p.csiz))
	}
}

func (p *parser) parseSIZ(seg *Segment, c *binio.Cursor) (Body, error) {
	if c.Remaining() < 38 {
		return nil, fmt.Errorf("%w: body of %d bytes is shorter than 38", ErrInvalidSIZ, c.Remaining())
	}
	siz := &SIZMarker{}
	siz.Rsiz, _ = c.ReadU16()
	fields := []*uint32{&siz.XSiz, &siz.YSiz, &siz.XOsiz, &siz.YOsiz, &siz.XTsiz, &siz.YTsiz, &siz.XTOsiz, &siz.YTOsiz}
	for _, f := range fields {
		*f, _ = c.ReadU32()
	}
	numComps, _ := c.ReadU16()
	if int64(numComps)*3 != c.Remaining() {
		return nil, fmt.Errorf("%w: Csiz=%d needs %d component bytes, found %d",
			ErrInvalidSIZ, numComps, int(numComps)*3, c.Remaining())
	}

	siz.Components = make([]ComponentInfo, numComps)
	for i := range siz.Components {
		ssiz, _ := c.ReadU8()
		xrsiz, _ := c.ReadU8()
		yrsiz, _ := c.ReadU8()
		siz.Components[i] = ComponentInfo{
			Precision: int(ssiz&0x7F) + 1,
			Signed:    ssiz&0x80 != 0,
			XRsiz:     int(xrsiz),
			YRsiz:     int(yrsiz),
		}
		if xrsiz == 0 || yrsiz == 0 {
			seg.Errors = append(seg.Errors, jp2err.Invalid("component %d has zero subsampling (%d, %d)", i, yrsiz, xrsiz))
		}
	}

	if _, ok := ProfileName(siz.Rsiz); !ok {
		seg.Errors = append(seg.Errors, jp2err.Unrecognized("Rsiz profile", int64(siz.Rsiz)))
	}
	if siz.XTsiz == 0 || siz.YTsiz == 0 {
		seg.Errors = append(seg.Errors, jp2err.Invalid("tile size (%d x %d) has a zero dimension", siz.YTsiz, siz.XTsiz))
	} else if n := siz.NumTiles(); n > 65535 {
		seg.Errors = append(seg.Errors, jp2err.Invalid("invalid number of tiles: %d", n))
	}
	p.csiz = int(numComps)
	return siz, nil
}

func (p *parser) readCodingParams(seg *Segment, c *binio.Cursor, userPrecincts bool) (CodingParams, error) {
	var cp CodingParams
	b, err := c.ReadFixed(5)
	if err != nil {
		return cp, err
	}
	cp.DecompLevels = b[0]
	cp.CodeBlockWidthExp = b[1]
	cp.CodeBlockHeightExp = b[2]
	cp.CodeBlockStyle = b[3]
	cp.Transform = TransformType(b[4])

	if userPrecincts {
		rest, _ := c.ReadRest()
		for _, v := range rest {
			cp.PrecinctSizes = append(cp.PrecinctSizes, Precinct{Width: 1 << (v & 0x0F), Height: 1 << (v >> 4)})
		}
		if len(rest) != int(cp.DecompLevels)+1 {
			seg.Errors = append(seg.Errors, jp2err.Invalid("%d precinct sizes for %d resolution levels", len(rest), int(cp.DecompLevels)+1))
		}
	} else {
		cp.PrecinctSizes = []Precinct{{Width: DefaultPrecinct, Height: DefaultPrecinct}}
	}

	if cp.DecompLevels > MaxDecompLevels {
		seg.Errors = append(seg.Errors, jp2err.Invalid("%d decomposition levels exceeds %d", cp.DecompLevels, MaxDecompLevels))
	}
	if cp.CodeBlockWidthExp > 8 || cp.CodeBlockHeightExp > 8 || cp.CodeBlockWidthExp+cp.CodeBlockHeightExp > 8 {
		seg.Errors = append(seg.Errors, jp2err.Invalid("code-block exponents (%d, %d) out of range", cp.CodeBlockHeightExp, cp.CodeBlockWidthExp))
	}
	if !cp.Transform.Valid() {
		seg.Errors = append(seg.Errors, jp2err.Unrecognized("wavelet transform", int64(cp.Transform)))
	}
	return cp, nil
}

func (p *parser) parseCOD(seg *Segment, c *binio.Cursor) (Body, error) {
	if c.Remaining() < 10 {
		return nil, fmt.Errorf("%w: body of %d bytes is shorter than 10", ErrInvalidCOD, c.Remaining())
	}
	cod := &CODMarker{}
	cod.Scod, _ = c.ReadU8()
	prog, _ := c.ReadU8()
	cod.Progression = ProgressionOrder(prog)
	cod.NumLayers, _ = c.ReadU16()
	cod.MCT, _ = c.ReadU8()
	cp, err := p.readCodingParams(seg, c, cod.Scod&CodingStylePrecinctsUser != 0)
	if err != nil {
		return nil, err
	}
	cod.CodingParams = cp

	if !cod.Progression.Valid() {
		seg.Errors = append(seg.Errors, jp2err.Unrecognized("progression order", int64(prog)))
	}
	if cod.NumLayers == 0 {
		seg.Errors = append(seg.Errors, jp2err.Invalid("number of layers is zero"))
	}
	if p.cod == nil {
		p.cod = cod
	}
	return cod, nil
}

func (p *parser) parseCOC(seg *Segment, c *binio.Cursor) (Body, error) {
	coc := &COCMarker{}
	var err error
	if coc.Component, err = p.readComponent(c); err != nil {
		return nil, err
	}
	if coc.Scoc, err = c.ReadU8(); err != nil {
		return nil, err
	}
	cp, err := p.readCodingParams(seg, c, coc.Scoc&CodingStylePrecinctsUser != 0)
	if err != nil {
		return nil, err
	}
	coc.CodingParams = cp
	p.checkComponent(seg, coc.Component)
	p.coc[coc.Component] = &coc.CodingParams
	return coc, nil
}

func (p *parser) readQuantization(seg *Segment, c *binio.Cursor, levels int) (Quantization, error) {
	var q Quantization
	sqcd, err := c.ReadU8()
	if err != nil {
		return q, err
	}
	q.Sqcd = sqcd
	q.GuardBits = (sqcd & 0xE0) >> 5
	rest, _ := c.ReadRest()

	switch q.Style() {
	case 0:
		for _, b := range rest {
			q.StepSizes = append(q.StepSizes, StepSize{Exponent: b >> 3})
		}
	case 1, 2:
		if len(rest)%2 != 0 {
			return q, fmt.Errorf("%w: odd number (%d) of step size bytes", ErrInvalidQCD, len(rest))
		}
		for i := 0; i+1 < len(rest); i += 2 {
			v := uint16(rest[i])<<8 | uint16(rest[i+1])
			q.StepSizes = append(q.StepSizes, StepSize{Mantissa: v & 0x07FF, Exponent: uint8(v >> 11)})
		}
	default:
		seg.Errors = append(seg.Errors, jp2err.Unrecognized("quantization style", int64(q.Style())))
		return q, nil
	}

	if levels >= 0 {
		want := 3*levels + 1
		if q.Style() == 1 {
			want = 1
		}
		if len(q.StepSizes) != want {
			seg.Errors = append(seg.Errors, jp2err.Invalid("%d step sizes for %d decomposition levels, expected %d",
				len(q.StepSizes), levels, want))
		}
	}
	return q, nil
}

func (p *parser) levels(comp *uint16) int {
	if comp != nil {
		if cp, ok := p.coc[*comp]; ok {
			return int(cp.DecompLevels)
		}
	}
	if p.cod != nil {
		return int(p.cod.DecompLevels)
	}
	return -1
}

func (p *parser) parseQCD(seg *Segment, c *binio.Cursor) (Body, error) {
	q, err := p.readQuantization(seg, c, p.levels(nil))
	if err != nil {
		return nil, err
	}
	return &QCDMarker{Quantization: q}, nil
}

func (p *parser) parseQCC(seg *Segment, c *binio.Cursor) (Body, error) {
	comp, err := p.readComponent(c)
	if err != nil {
		return nil, err
	}
	p.checkComponent(seg, comp)
	q, err := p.readQuantization(seg, c, p.levels(&comp))
	if err != nil {
		return nil, err
	}
	return &QCCMarker{Component: comp, Quantization: q}, nil
}

func (p *parser) parseRGN(seg *Segment, c *binio.Cursor) (Body, error) {
	rgn := &RGNMarker{}
	var err error
	if rgn.Component, err = p.readComponent(c); err != nil {
		return nil, err
	}
	if rgn.Style, err = c.ReadU8(); err != nil {
		return nil, err
	}
	if rgn.Shift, err = c.ReadU8(); err != nil {
		return nil, err
	}
	p.checkComponent(seg, rgn.Component)
	return rgn, nil
}

func (p *parser) parsePOC(c *binio.Cursor) (Body, error) {
	n := p.componentBytes()
	entry := int64(5 + 2*n)
	if c.Remaining()%entry != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of the %d byte POC entry", ErrInvalidLength, c.Remaining(), entry)
	}
	poc := &POCMarker{}
	for c.Remaining() > 0 {
		var pc ProgressionChange
		pc.ResolutionStart, _ = c.ReadU8()
		pc.ComponentStart, _ = p.readComponent(c)
		pc.LayerEnd, _ = c.ReadU16()
		pc.ResolutionEnd, _ = c.ReadU8()
		pc.ComponentEnd, _ = p.readComponent(c)
		order, _ := c.ReadU8()
		pc.Order = ProgressionOrder(order)
		poc.Changes = append(poc.Changes, pc)
	}
	return poc, nil
}

func parseTLM(c *binio.Cursor) (Body, error) {
	b, err := c.ReadFixed(2)
	if err != nil {
		return nil, err
	}
	tlm := &TLMMarker{Index: b[0]}
	st := int64((b[1] >> 4) & 0x03)
	sp := int64((b[1] >> 6) & 0x01)
	if st == 3 {
		return nil, fmt.Errorf("%w: TLM Stlm=0x%02x has reserved ST value", ErrInvalidLength, b[1])
	}
	ptlm := int64(2)
	if sp == 1 {
		ptlm = 4
	}
	entry := st + ptlm
	if c.Remaining()%entry != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of the %d byte TLM entry", ErrInvalidLength, c.Remaining(), entry)
	}
	for c.Remaining() > 0 {
		switch st {
		case 1:
			v, _ := c.ReadU8()
			tlm.TileNumbers = append(tlm.TileNumbers, uint16(v))
		case 2:
			v, _ := c.ReadU16()
			tlm.TileNumbers = append(tlm.TileNumbers, v)
		}
		if ptlm == 4 {
			v, _ := c.ReadU32()
			tlm.Lengths = append(tlm.Lengths, v)
		} else {
			v, _ := c.ReadU16()
			tlm.Lengths = append(tlm.Lengths, uint32(v))
		}
	}
	return tlm, nil
}

func parsePLT(seg *Segment, c *binio.Cursor) (Body, error) {
	z, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	plt := &PLTMarker{Index: z}
	rest, _ := c.ReadRest()
	var v uint32
	pending := false
	for _, b := range rest {
		v = v<<7 | uint32(b&0x7F)
		pending = true
		if b&0x80 == 0 {
			plt.PacketLengths = append(plt.PacketLengths, v)
			v, pending = 0, false
		}
	}
	if pending {
		seg.Errors = append(seg.Errors, jp2err.Invalid("PLT ends inside a packet length"))
	}
	return plt, nil
}

func parsePPM(c *binio.Cursor) (Body, error) {
	z, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	data, _ := c.ReadRest()
	return &PPMMarker{Index: z, Data: data}, nil
}

func parsePPT(c *binio.Cursor) (Body, error) {
	z, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	data, _ := c.ReadRest()
	return &PPTMarker{Index: z, Data: data}, nil
}

func (p *parser) parseCRG(seg *Segment, c *binio.Cursor) (Body, error) {
	if c.Remaining()%4 != 0 {
		return nil, fmt.Errorf("%w: CRG body of %d bytes", ErrInvalidLength, c.Remaining())
	}
	crg := &CRGMarker{}
	for c.Remaining() > 0 {
		x, _ := c.ReadU16()
		y, _ := c.ReadU16()
		crg.Offsets = append(crg.Offsets, CRGOffset{X: x, Y: y})
	}
	if p.csiz >= 0 && len(crg.Offsets) != p.csiz {
		seg.Errors = append(seg.Errors, jp2err.Invalid("CRG has %d offsets for %d components", len(crg.Offsets), p.csiz))
	}
	return crg, nil
}

func parseCOM(seg *Segment, c *binio.Cursor) (Body, error) {
	rcme, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	data, _ := c.ReadRest()
	if rcme > 1 {
		seg.Errors = append(seg.Errors, jp2err.Unrecognized("comment registration", int64(rcme)))
	}
	return &COMMarker{Registration: rcme, Data: data}, nil
}

func (p *parser) parseSOT(seg *Segment, c *binio.Cursor) (Body, error) {
	if seg.Length != 10 {
		return nil, fmt.Errorf("%w: Lsot=%d, must be 10", ErrInvalidSOT, seg.Length)
	}
	sot := &SOTMarker{}
	sot.TileIndex, _ = c.ReadU16()
	sot.TilePartLen, _ = c.ReadU32()
	sot.TilePartIdx, _ = c.ReadU8()
	sot.NumTileParts, _ = c.ReadU8()

	p.inTile = true
	p.tileOffset = seg.Offset
	if sot.TilePartLen == 0 {
		// the last tile part runs to just before EOC
		p.tileLength = p.c.End() - 2 - seg.Offset
	} else {
		p.tileLength = int64(sot.TilePartLen)
	}
	if p.cs.SIZ() != nil {
		if n := p.cs.SIZ().NumTiles(); n > 0 && int(sot.TileIndex) >= n {
			seg.Errors = append(seg.Errors, jp2err.Invalid("tile index %d out of range for %d tiles", sot.TileIndex, n))
		}
	}
	return sot, nil
}

// skipTileData moves past the entropy-coded data following SOD, scanning it
// for SOP/EPH markers first when the coding style enables them.
func (p *parser) skipTileData(sod *Segment, headerOnly bool) error {
	if !p.inTile {
		return fmt.Errorf("%w: SOD at offset %d without a preceding SOT", ErrInvalidMarker, sod.Offset)
	}
	p.inTile = false
	next := p.tileOffset + p.tileLength
	if next > p.c.End() {
		sod.Errors = append(sod.Errors, jp2err.Truncated(p.c.Tell(), next-p.c.Tell(), p.c.End()-p.c.Tell()))
		next = p.c.End()
	}
	if !headerOnly && p.cod != nil && (p.cod.SOP() || p.cod.EPH()) && next > p.c.Tell() {
		data, err := p.c.Bounded(p.c.Tell(), next).ReadRest()
		if err == nil {
			p.scanPackets(sod, data)
		}
	}
	if next < p.c.Tell() {
		return fmt.Errorf("%w: tile part at offset %d ends before its data starts", ErrInvalidSOT, p.tileOffset)
	}
	return p.c.Seek(next)
}

func (p *parser) scanPackets(sod *Segment, data []byte) {
	base := sod.Offset + 2
	for i := 0; i+1 < len(data); i++ {
		if data[i] != 0xFF {
			continue
		}
		switch Marker(0xFF00 | uint16(data[i+1])) {
		case MarkerSOP:
			if i+6 > len(data) {
				continue
			}
			nsop := uint16(data[i+4])<<8 | uint16(data[i+5])
			p.cs.Segments = append(p.cs.Segments, &Segment{
				Marker: MarkerSOP, Offset: base + int64(i), Length: 4, Body: &SOPMarker{Nsop: nsop},
			})
		case MarkerEPH:
			p.cs.Segments = append(p.cs.Segments, &Segment{Marker: MarkerEPH, Offset: base + int64(i)})
		}
	}
}
