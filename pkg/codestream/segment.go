package codestream

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// Codestream is the ordered list of marker segments parsed from one codestream.
type Codestream struct {
	Offset     int64 // absolute offset of the SOC marker
	Length     int64 // bytes from SOC to the end of the codestream range
	HeaderOnly bool
	Segments   []*Segment
	// HeaderLength is the size of the main header, from SOC up to the first
	// SOT. It is 0 when no SOT was reached.
	HeaderLength int64
	// Err is set when parsing stopped before EOC (or before the first SOT in
	// header-only mode). Segments collected up to that point are kept.
	Err error
}

// Segment is one marker segment. Length is the value of the length field,
// which counts itself but not the marker; it is 0 for markers without one.
type Segment struct {
	Marker Marker
	Offset int64
	Length int
	Body   Body   // nil for delimiting markers and reserved segments
	Data   []byte // raw body bytes when Body could not be decoded or is unknown
	Errors []error
}

// Body is the decoded content of a marker segment
type Body interface {
	lines() []string
}

// Find returns the first segment with the given marker
func (c *Codestream) Find(m Marker) *Segment {
	for _, s := range c.Segments {
		if s.Marker == m {
			return s
		}
	}
	return nil
}

// FindAll returns every segment with the given marker
func (c *Codestream) FindAll(m Marker) []*Segment {
	var out []*Segment
	for _, s := range c.Segments {
		if s.Marker == m {
			out = append(out, s)
		}
	}
	return out
}

// SIZ returns the image and tile size body, or nil
func (c *Codestream) SIZ() *SIZMarker {
	if s := c.Find(MarkerSIZ); s != nil {
		if siz, ok := s.Body.(*SIZMarker); ok {
			return siz
		}
	}
	return nil
}

// COD returns the coding style default body, or nil
func (c *Codestream) COD() *CODMarker {
	if s := c.Find(MarkerCOD); s != nil {
		if cod, ok := s.Body.(*CODMarker); ok {
			return cod
		}
	}
	return nil
}

// ComponentInfo holds component-specific information from SIZ marker
type ComponentInfo struct {
	Precision int  // Bit depth (1-38)
	Signed    bool // True if signed samples
	XRsiz     int  // Horizontal sample separation
	YRsiz     int  // Vertical sample separation
}

// SIZMarker holds image and tile size parameters (ITU-T T.800 A.5.1)
type SIZMarker struct {
	Rsiz       uint16          // Capabilities required
	XSiz       uint32          // Reference grid width
	YSiz       uint32          // Reference grid height
	XOsiz      uint32          // Horizontal offset
	YOsiz      uint32          // Vertical offset
	XTsiz      uint32          // Tile width
	YTsiz      uint32          // Tile height
	XTOsiz     uint32          // Tile horizontal offset
	YTOsiz     uint32          // Tile vertical offset
	Components []ComponentInfo // Per-component info
}

// NumXTiles returns the number of tiles horizontally
func (s *SIZMarker) NumXTiles() int {
	if s.XTsiz == 0 || s.XSiz < s.XTOsiz {
		return 0
	}
	return int((uint64(s.XSiz) - uint64(s.XTOsiz) + uint64(s.XTsiz) - 1) / uint64(s.XTsiz))
}

// NumYTiles returns the number of tiles vertically
func (s *SIZMarker) NumYTiles() int {
	if s.YTsiz == 0 || s.YSiz < s.YTOsiz {
		return 0
	}
	return int((uint64(s.YSiz) - uint64(s.YTOsiz) + uint64(s.YTsiz) - 1) / uint64(s.YTsiz))
}

// NumTiles returns the total number of tiles
func (s *SIZMarker) NumTiles() int {
	return s.NumXTiles() * s.NumYTiles()
}

// Csiz returns the declared number of components
func (s *SIZMarker) Csiz() int {
	return len(s.Components)
}

// Precinct is a precinct width and height in samples
type Precinct struct {
	Width, Height int
}

// CodingParams are the SPcod/SPcoc fields shared by COD and COC
type CodingParams struct {
	DecompLevels       byte          // Number of decomposition levels
	CodeBlockWidthExp  byte          // Code-block width exponent (add 2)
	CodeBlockHeightExp byte          // Code-block height exponent (add 2)
	CodeBlockStyle     byte          // Code-block style flags
	Transform          TransformType // Wavelet transform type
	PrecinctSizes      []Precinct    // One per resolution level, or the default
}

// CodeBlockWidth returns the actual code-block width
func (c *CodingParams) CodeBlockWidth() int {
	return 1 << (c.CodeBlockWidthExp + 2)
}

// CodeBlockHeight returns the actual code-block height
func (c *CodingParams) CodeBlockHeight() int {
	return 1 << (c.CodeBlockHeightExp + 2)
}

// CODMarker holds coding style default parameters (ITU-T T.800 A.6.1)
type CODMarker struct {
	Scod        byte             // Coding style
	Progression ProgressionOrder // Progression order
	NumLayers   uint16           // Number of quality layers
	MCT         byte             // Multiple component transform (0=none, 1=RCT/ICT)
	CodingParams
}

// SOP reports whether SOP marker segments may appear in tile data
func (c *CODMarker) SOP() bool { return c.Scod&CodingStyleSOPMarker != 0 }

// EPH reports whether EPH markers may appear in tile data
func (c *CODMarker) EPH() bool { return c.Scod&CodingStyleEPHMarker != 0 }

// COCMarker overrides COD for a single component (ITU-T T.800 A.6.2)
type COCMarker struct {
	Component uint16
	Scoc      byte
	CodingParams
}

// StepSize is one quantization step size
type StepSize struct {
	Mantissa uint16
	Exponent uint8
}

// Quantization is the body shared by QCD and QCC
type Quantization struct {
	Sqcd      byte // Quantization style byte, guard bits in the top three bits
	GuardBits byte
	StepSizes []StepSize
}

// Style returns the quantization style (0 none, 1 scalar implicit, 2 scalar explicit)
func (q *Quantization) Style() byte {
	return q.Sqcd & 0x1F
}

// QCDMarker holds quantization default parameters (ITU-T T.800 A.6.4)
type QCDMarker struct {
	Quantization
}

// QCCMarker overrides QCD for a single component (ITU-T T.800 A.6.5)
type QCCMarker struct {
	Component uint16
	Quantization
}

// RGNMarker holds region of interest parameters (ITU-T T.800 A.6.3)
type RGNMarker struct {
	Component uint16
	Style     byte
	Shift     byte
}

// ProgressionChange is one entry of a POC segment
type ProgressionChange struct {
	ResolutionStart byte
	ComponentStart  uint16
	LayerEnd        uint16
	ResolutionEnd   byte
	ComponentEnd    uint16
	Order           ProgressionOrder
}

// POCMarker holds progression order changes (ITU-T T.800 A.6.6)
type POCMarker struct {
	Changes []ProgressionChange
}

// TLMMarker holds tile-part lengths (ITU-T T.800 A.7.1)
type TLMMarker struct {
	Index       byte
	TileNumbers []uint16 // empty when tile numbers are implied
	Lengths     []uint32
}

// PLTMarker holds packet lengths for a tile-part (ITU-T T.800 A.7.3)
type PLTMarker struct {
	Index         byte
	PacketLengths []uint32
}

// PPMMarker holds packed packet headers from the main header
type PPMMarker struct {
	Index byte
	Data  []byte
}

// PPTMarker holds packed packet headers from a tile-part header
type PPTMarker struct {
	Index byte
	Data  []byte
}

// CRGOffset is one component registration offset in units of 1/65536 sample
type CRGOffset struct {
	X, Y uint16
}

// CRGMarker holds component registration (ITU-T T.800 A.9.1)
type CRGMarker struct {
	Offsets []CRGOffset
}

// COMMarker holds comment data (ITU-T T.800 A.9.2)
type COMMarker struct {
	Registration uint16 // Registration value (0=binary, 1=Latin-1)
	Data         []byte // Comment data
}

// Text decodes a Latin-1 comment. Binary comments return false.
func (c *COMMarker) Text() (string, bool) {
	if c.Registration != 1 {
		return "", false
	}
	decoded, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(c.Data)))
	if err != nil {
		return string(c.Data), true
	}
	return string(decoded), true
}

// SOTMarker holds tile-part header parameters (ITU-T T.800 A.4.2)
type SOTMarker struct {
	TileIndex    uint16 // Tile index
	TilePartLen  uint32 // Length of tile-part
	TilePartIdx  byte   // Tile-part index
	NumTileParts byte   // Number of tile-parts (0 = not specified)
}

// SOPMarker is a start of packet marker found inside tile data
type SOPMarker struct {
	Nsop uint16
}
