package codestream

import (
	"fmt"
	"strings"
)

const indent = "    "

// String renders the segment header followed by its indented fields
func (s *Segment) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s marker segment @ (%d, %d)", s.Marker, s.Offset, s.Length)
	var lines []string
	switch {
	case s.Body != nil:
		lines = s.Body.lines()
	case len(s.Data) > 0:
		lines = []string{fmt.Sprintf("Data:  %d uninterpreted bytes", len(s.Data))}
	}
	for _, err := range s.Errors {
		lines = append(lines, "Error:  "+err.Error())
	}
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(indentLines(l, indent))
	}
	return b.String()
}

// String renders every segment under a "Codestream:" heading
func (c *Codestream) String() string {
	var b strings.Builder
	b.WriteString("Codestream:")
	for _, s := range c.Segments {
		b.WriteString("\n")
		b.WriteString(indentLines(s.String(), indent))
	}
	if c.Err != nil {
		b.WriteString("\n")
		b.WriteString(indent + "Parsing stopped:  " + c.Err.Error())
	}
	return b.String()
}

func indentLines(s, prefix string) string {
	parts := strings.Split(s, "\n")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, "\n")
}

func (s *SIZMarker) lines() []string {
	profile, _ := ProfileName(s.Rsiz)
	depths := make([]string, len(s.Components))
	signed := make([]string, len(s.Components))
	sub := make([]string, len(s.Components))
	for i, c := range s.Components {
		depths[i] = fmt.Sprint(c.Precision)
		signed[i] = fmt.Sprint(c.Signed)
		sub[i] = fmt.Sprintf("(%d, %d)", c.YRsiz, c.XRsiz)
	}
	return []string{
		"Profile:  " + profile,
		fmt.Sprintf("Reference Grid Height, Width:  (%d x %d)", s.YSiz, s.XSiz),
		fmt.Sprintf("Vertical, Horizontal Reference Grid Offset:  (%d x %d)", s.YOsiz, s.XOsiz),
		fmt.Sprintf("Reference Tile Height, Width:  (%d x %d)", s.YTsiz, s.XTsiz),
		fmt.Sprintf("Vertical, Horizontal Reference Tile Offset:  (%d x %d)", s.YTOsiz, s.XTOsiz),
		"Bitdepth:  (" + strings.Join(depths, ", ") + ")",
		"Signed:  (" + strings.Join(signed, ", ") + ")",
		"Vertical, Horizontal Subsampling:  (" + strings.Join(sub, ", ") + ")",
	}
}

func (c *CodingParams) paramLines() []string {
	return []string{
		fmt.Sprintf("Number of decomposition levels:  %d", c.DecompLevels),
		fmt.Sprintf("Code block height, width:  (%d x %d)", c.CodeBlockHeight(), c.CodeBlockWidth()),
		"Wavelet transform:  " + c.Transform.String(),
		"Precinct size:  " + precinctString(c.PrecinctSizes),
		"Code block context:",
		indent + fmt.Sprintf("Selective arithmetic coding bypass:  %t", c.CodeBlockStyle&CodeBlockSelectiveBypass != 0),
		indent + fmt.Sprintf("Reset context probabilities on coding pass boundaries:  %t", c.CodeBlockStyle&CodeBlockResetContext != 0),
		indent + fmt.Sprintf("Termination on each coding pass:  %t", c.CodeBlockStyle&CodeBlockTermOnPass != 0),
		indent + fmt.Sprintf("Vertically stripe causal context:  %t", c.CodeBlockStyle&CodeBlockVerticalCausal != 0),
		indent + fmt.Sprintf("Predictable termination:  %t", c.CodeBlockStyle&CodeBlockPredictableTermination != 0),
		indent + fmt.Sprintf("Segmentation symbols:  %t", c.CodeBlockStyle&CodeBlockSegmentationSymbols != 0),
	}
}

func precinctString(ps []Precinct) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("(%d, %d)", p.Width, p.Height)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (c *CODMarker) lines() []string {
	with := "without"
	if c.Scod&CodingStylePrecinctsUser != 0 {
		with = "with"
	}
	var mct string
	switch {
	case c.MCT == 0:
		mct = "no transform specified"
	case c.MCT&0x01 != 0:
		mct = "reversible"
	case c.MCT&0x02 != 0:
		mct = "irreversible"
	default:
		mct = "unknown"
	}
	out := []string{
		"Coding style:",
		indent + fmt.Sprintf("Entropy coder, %s partitions", with),
		indent + fmt.Sprintf("SOP marker segments:  %t", c.SOP()),
		indent + fmt.Sprintf("EPH marker segments:  %t", c.EPH()),
		"Coding style parameters:",
		indent + "Progression order:  " + c.Progression.String(),
		indent + fmt.Sprintf("Number of layers:  %d", c.NumLayers),
		indent + "Multiple component transformation usage:  " + mct,
	}
	for _, l := range c.paramLines() {
		out = append(out, indent+l)
	}
	return out
}

func (c *COCMarker) lines() []string {
	partition := 0
	if c.Scoc != 0 {
		partition = 1
	}
	out := []string{
		fmt.Sprintf("Associated component:  %d", c.Component),
		fmt.Sprintf("Coding style for this component:  Entropy coder, PARTITION = %d", partition),
		"Coding style parameters:",
	}
	for _, l := range c.paramLines() {
		out = append(out, indent+l)
	}
	return out
}

func (q *Quantization) quantLines() []string {
	var style string
	switch q.Style() {
	case 0:
		style = "no quantization"
	case 1:
		style = "scalar implicit"
	case 2:
		style = "scalar explicit"
	default:
		style = fmt.Sprintf("unrecognized (raw value %d)", q.Style())
	}
	steps := make([]string, len(q.StepSizes))
	for i, s := range q.StepSizes {
		steps[i] = fmt.Sprintf("(%d, %d)", s.Mantissa, s.Exponent)
	}
	return []string{
		fmt.Sprintf("Quantization style:  %s, %d guard bits", style, q.GuardBits),
		"Step size:  [" + strings.Join(steps, ", ") + "]",
	}
}

func (q *QCDMarker) lines() []string {
	return q.quantLines()
}

func (q *QCCMarker) lines() []string {
	return append([]string{fmt.Sprintf("Associated Component:  %d", q.Component)}, q.quantLines()...)
}

func (r *RGNMarker) lines() []string {
	return []string{
		fmt.Sprintf("Associated component:  %d", r.Component),
		fmt.Sprintf("ROI style:  %d", r.Style),
		fmt.Sprintf("Parameter:  %d", r.Shift),
	}
}

func (p *POCMarker) lines() []string {
	var out []string
	for i, c := range p.Changes {
		out = append(out,
			fmt.Sprintf("Progression change %d:", i),
			indent+fmt.Sprintf("Resolution index start:  %d", c.ResolutionStart),
			indent+fmt.Sprintf("Component index start:  %d", c.ComponentStart),
			indent+fmt.Sprintf("Layer index end:  %d", c.LayerEnd),
			indent+fmt.Sprintf("Resolution index end:  %d", c.ResolutionEnd),
			indent+fmt.Sprintf("Component index end:  %d", c.ComponentEnd),
			indent+"Progression order:  "+c.Order.String(),
		)
	}
	return out
}

func (t *TLMMarker) lines() []string {
	out := []string{fmt.Sprintf("Index:  %d", t.Index)}
	if len(t.TileNumbers) > 0 {
		out = append(out, "Tile number:  "+abbreviate(t.TileNumbers))
	}
	return append(out, "Length:  "+abbreviate(t.Lengths))
}

func (p *PLTMarker) lines() []string {
	return []string{
		fmt.Sprintf("Index:  %d", p.Index),
		"Iplt:  " + abbreviate(p.PacketLengths),
	}
}

func (p *PPMMarker) lines() []string {
	return []string{
		fmt.Sprintf("Index:  %d", p.Index),
		fmt.Sprintf("Data:  %d uninterpreted bytes", len(p.Data)),
	}
}

func (p *PPTMarker) lines() []string {
	return []string{
		fmt.Sprintf("Index:  %d", p.Index),
		fmt.Sprintf("Packet headers:  %d uninterpreted bytes", len(p.Data)),
	}
}

func (c *CRGMarker) lines() []string {
	parts := make([]string, len(c.Offsets))
	for i, o := range c.Offsets {
		parts[i] = fmt.Sprintf("(%.2f, %.2f)", float64(o.Y)/65535.0, float64(o.X)/65535.0)
	}
	return []string{"Vertical, Horizontal offset:  " + strings.Join(parts, " ")}
}

func (c *COMMarker) lines() []string {
	if text, ok := c.Text(); ok {
		return []string{fmt.Sprintf("%q", text)}
	}
	return []string{fmt.Sprintf("binary data (rcme = %d):  %d bytes", c.Registration, len(c.Data))}
}

func (s *SOTMarker) lines() []string {
	return []string{
		fmt.Sprintf("Tile part index:  %d", s.TileIndex),
		fmt.Sprintf("Tile part length:  %d", s.TilePartLen),
		fmt.Sprintf("Tile part instance:  %d", s.TilePartIdx),
		fmt.Sprintf("Number of tile parts:  %d", s.NumTileParts),
	}
}

func (s *SOPMarker) lines() []string {
	return []string{fmt.Sprintf("Nsop:  %d", s.Nsop)}
}

// abbreviate prints short lists whole and long ones as head ... tail
func abbreviate[T uint16 | uint32](vals []T) string {
	const keep = 3
	if len(vals) <= 2*keep {
		return fmt.Sprint(vals)
	}
	head := strings.Trim(fmt.Sprint(vals[:keep]), "[]")
	tail := strings.Trim(fmt.Sprint(vals[len(vals)-keep:]), "[]")
	return "[" + head + " ... " + tail + "]"
}
