// Package codestream parses the JPEG 2000 (Part-1) codestream marker-segment
// structure found inside a contiguous-codestream box or a bare .j2k/.j2c file.
// Entropy-coded tile data is never decoded; only its extent is tracked.
package codestream

import "fmt"

// Marker is a two byte marker code
type Marker uint16

// JPEG 2000 Marker codes (ITU-T T.800 Table A.1)
const (
	// Delimiting markers
	MarkerSOC Marker = 0xFF4F // Start of codestream
	MarkerSOT Marker = 0xFF90 // Start of tile-part
	MarkerSOD Marker = 0xFF93 // Start of data
	MarkerEOC Marker = 0xFFD9 // End of codestream

	// Fixed information markers
	MarkerCAP Marker = 0xFF50 // Extended capabilities
	MarkerSIZ Marker = 0xFF51 // Image and tile size

	// Functional markers
	MarkerCOD Marker = 0xFF52 // Coding style default
	MarkerCOC Marker = 0xFF53 // Coding style component
	MarkerRGN Marker = 0xFF5E // Region of interest
	MarkerQCD Marker = 0xFF5C // Quantization default
	MarkerQCC Marker = 0xFF5D // Quantization component
	MarkerPOC Marker = 0xFF5F // Progression order change

	// Pointer markers
	MarkerTLM Marker = 0xFF55 // Tile-part lengths
	MarkerPLM Marker = 0xFF57 // Packet length, main header
	MarkerPLT Marker = 0xFF58 // Packet length, tile-part header
	MarkerPPM Marker = 0xFF60 // Packed packet headers, main header
	MarkerPPT Marker = 0xFF61 // Packed packet headers, tile-part header

	// In-bitstream markers
	MarkerSOP Marker = 0xFF91 // Start of packet
	MarkerEPH Marker = 0xFF92 // End of packet header

	// Informational markers
	MarkerCRG Marker = 0xFF63 // Component registration
	MarkerCOM Marker = 0xFF64 // Comment
)

var markerNames = map[Marker]string{
	MarkerSOC: "SOC",
	MarkerSOT: "SOT",
	MarkerSOD: "SOD",
	MarkerEOC: "EOC",
	MarkerSIZ: "SIZ",
	MarkerCOD: "COD",
	MarkerCOC: "COC",
	MarkerRGN: "RGN",
	MarkerQCD: "QCD",
	MarkerQCC: "QCC",
	MarkerPOC: "POC",
	MarkerTLM: "TLM",
	MarkerPLT: "PLT",
	MarkerPPM: "PPM",
	MarkerPPT: "PPT",
	MarkerSOP: "SOP",
	MarkerEPH: "EPH",
	MarkerCRG: "CRG",
	MarkerCOM: "COM",
}

// String returns the segment mnemonic, or the hex code for reserved markers
func (m Marker) String() string {
	if name, ok := markerNames[m]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(m))
}

// HasLength reports whether a length field follows the marker
func (m Marker) HasLength() bool {
	switch {
	case m == MarkerSOC, m == MarkerSOD, m == MarkerEOC, m == MarkerEPH:
		return false
	case m >= 0xFF30 && m <= 0xFF3F:
		return false
	}
	return true
}

// ProgressionOrder defines the progression order for JPEG 2000 codestream
type ProgressionOrder byte

const (
	ProgressionLRCP ProgressionOrder = 0 // Layer-Resolution-Component-Position
	ProgressionRLCP ProgressionOrder = 1 // Resolution-Layer-Component-Position
	ProgressionRPCL ProgressionOrder = 2 // Resolution-Position-Component-Layer
	ProgressionPCRL ProgressionOrder = 3 // Position-Component-Resolution-Layer
	ProgressionCPRL ProgressionOrder = 4 // Component-Position-Resolution-Layer
)

// Valid reports whether p is one of the five defined orders
func (p ProgressionOrder) Valid() bool {
	return p <= ProgressionCPRL
}

// String returns the progression order name
func (p ProgressionOrder) String() string {
	switch p {
	case ProgressionLRCP:
		return "LRCP"
	case ProgressionRLCP:
		return "RLCP"
	case ProgressionRPCL:
		return "RPCL"
	case ProgressionPCRL:
		return "PCRL"
	case ProgressionCPRL:
		return "CPRL"
	default:
		return fmt.Sprintf("unrecognized (raw value %d)", byte(p))
	}
}

// CodingStyle flags (ITU-T T.800 Table A.13)
const (
	CodingStylePrecinctsUser = 0x01 // Custom precinct sizes
	CodingStyleSOPMarker     = 0x02 // SOP marker segments used
	CodingStyleEPHMarker     = 0x04 // EPH marker segments used
)

// CodeBlockStyle flags (ITU-T T.800 Table A.15)
const (
	CodeBlockSelectiveBypass        = 0x01 // Selective arithmetic coding bypass
	CodeBlockResetContext           = 0x02 // Reset context on coding pass boundary
	CodeBlockTermOnPass             = 0x04 // Termination on each coding pass
	CodeBlockVerticalCausal         = 0x08 // Vertically causal context
	CodeBlockPredictableTermination = 0x10 // Predictable termination
	CodeBlockSegmentationSymbols    = 0x20 // Segmentation symbols used
)

// TransformType identifies the wavelet transform type
type TransformType byte

const (
	TransformIrreversible97 TransformType = 0 // 9/7 irreversible (lossy)
	TransformReversible53   TransformType = 1 // 5/3 reversible (lossless)
)

// Valid reports whether t names a Part-1 wavelet
func (t TransformType) Valid() bool {
	return t <= TransformReversible53
}

func (t TransformType) String() string {
	switch t {
	case TransformIrreversible97:
		return "9-7 irreversible"
	case TransformReversible53:
		return "5-3 reversible"
	default:
		return fmt.Sprintf("unrecognized (raw value %d)", byte(t))
	}
}

// MaxDecompLevels is the largest number of decomposition levels Part-1 allows.
const MaxDecompLevels = 32

// DefaultPrecinct is the precinct size used when Scod does not define any.
const DefaultPrecinct = 1 << 15

// Rsiz capability values (ITU-T T.800 Table A.10 and amendments)
const (
	ProfileNone       = 0x0000
	Profile0          = 0x0001
	Profile1          = 0x0002
	ProfileCinema2K   = 0x0003
	ProfileCinema4K   = 0x0004
	ProfileCinemaS2K  = 0x0005
	ProfileCinemaS4K  = 0x0006
	ProfileCinemaLTS  = 0x0007
	ProfileBCSingle   = 0x0100
	ProfileBCMulti    = 0x0200
	ProfileBCMultiR   = 0x0300
	ProfileIMF2K      = 0x0400
	ProfileIMF4K      = 0x0500
	ProfileIMF8K      = 0x0600
	ProfileIMF2KR     = 0x0700
	ProfileIMF4KR     = 0x0800
	ProfileIMF8KR     = 0x0900
	ProfilePart2      = 0x8000
	profileBCMask     = 0x0F00
	profileSublevelLo = 0x000F
)

var profileNames = map[uint16]string{
	ProfileNone:      "no profile",
	Profile0:         "0",
	Profile1:         "1",
	ProfileCinema2K:  "2K cinema",
	ProfileCinema4K:  "4K cinema",
	ProfileCinemaS2K: "scalable 2K cinema",
	ProfileCinemaS4K: "scalable 4K cinema",
	ProfileCinemaLTS: "long term storage cinema",
	ProfileBCSingle:  "single tile broadcast",
	ProfileBCMulti:   "multi tile broadcast",
	ProfileBCMultiR:  "multi tile reversible broadcast",
	ProfileIMF2K:     "2K single tile lossy IMF",
	ProfileIMF4K:     "4K single tile lossy IMF",
	ProfileIMF8K:     "8K single tile lossy IMF",
	ProfileIMF2KR:    "2K single/multi tile reversible IMF",
	ProfileIMF4KR:    "4K single/multi tile reversible IMF",
	ProfileIMF8KR:    "8K single/multi tile reversible IMF",
	ProfilePart2:     "at least 1 extension defined in 15444-2 (Part-2)",
}

// ProfileName returns the display name for an Rsiz value and whether it is known.
// Broadcast and IMF profiles carry a level in the low nibble which is ignored.
func ProfileName(rsiz uint16) (string, bool) {
	if name, ok := profileNames[rsiz]; ok {
		return name, true
	}
	if rsiz&profileBCMask != 0 {
		if name, ok := profileNames[rsiz&^profileSublevelLo]; ok {
			return name, true
		}
	}
	if rsiz&ProfilePart2 != 0 {
		return profileNames[ProfilePart2], true
	}
	return fmt.Sprintf("%d (invalid)", rsiz), false
}
