package box

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

var featureNames = map[uint16]string{
	0:  "File not completely understood",
	1:  "Deprecated - contains no extensions",
	2:  "Contains multiple composition layers",
	3:  "Deprecated - codestream is compressed using JPEG 2000 and requires at least a Profile 0 decoder as defind in ITU-T Rec. T.800 | ISO/IEC 15444-1, A.10 Table A.45",
	4:  "JPEG 2000 Part 1 Profile 1 codestream",
	5:  "Unrestricted JPEG 2000 Part 1 codestream, ITU-T Rec. T.800 | ISO/IEC 15444-1",
	6:  "Unrestricted JPEG 2000 Part 2 codestream",
	7:  "JPEG codestream as defined in ISO/IEC 10918-1",
	8:  "Deprecated - does not contain opacity",
	9:  "Non-premultiplied opacity channel",
	10: "Premultiplied opacity channel",
	11: "Chroma-key based opacity",
	12: "Deprecated - codestream is contiguous",
	13: "Fragmented codestream where all fragments are in file and in order",
	14: "Fragmented codestream where all fragments are in file but are out of order",
	15: "Fragmented codestream where not all fragments are within the file but are all in locally accessible files",
	16: "Fragmented codestream where some fragments may be accessible only through a URL specified network connection",
	17: "Compositing required to produce rendered result from multiple compositing layers",
	18: "Deprecated - support for compositing is not required",
	19: "Deprecated - contains multiple, discrete layers that should not be combined through either animation or compositing",
	20: "Deprecated - compositing layers each contain only a single codestream",
	21: "At least one compositing layer consists of multiple codestreams",
	22: "Deprecated - all compositing layers are in the same colourspace",
	23: "Colourspace transformations are required to combine compositing layers; not all compositing layers are in the same colourspace",
	24: "Deprecated - rendered result created without using animation",
	25: "Deprecated - animated, but first layer covers entire area and is opaque",
	26: "First animation layer does not cover entire rendered result",
	27: "Deprecated - animated, and no layer is reused",
	28: "Reuse of animation layers",
	29: "Deprecated - animated, but layers are reused",
	30: "Some animated frames are non-persistent",
	31: "Deprecated - rendered result created without using scaling",
	32: "Rendered result involves scaling within a layer",
	33: "Rendered result involves scaling between layers",
	34: "ROI metadata",
	35: "IPR metadata",
	36: "Content metadata",
	37: "History metadata",
	38: "Creation metadata",
	39: "JPX digital signatures",
	40: "JPX checksums",
	41: "Desires Graphics Arts Reproduction specified",
	42: "Deprecated - compositing layer uses palettized colour",
	43: "Deprecated - compositing layer uses restricted ICC profile",
	44: "Compositing layer uses Any ICC profile",
	45: "Deprecated - compositing layer uses sRGB enumerated colourspace",
	46: "Deprecated - compositing layer uses sRGB-grey enumerated colourspace",
	47: "BiLevel 1 enumerated colourspace",
	48: "BiLevel 2 enumerated colourspace",
	49: "YCbCr 1 enumerated colourspace",
	50: "YCbCr 2 enumerated colourspace",
	51: "YCbCr 3 enumerated colourspace",
	52: "PhotoYCC enumerated colourspace",
	53: "YCCK enumerated colourspace",
	54: "CMY enumerated colourspace",
	55: "CMYK enumerated colorspace",
	56: "CIELab enumerated colourspace with default parameters",
	57: "CIELab enumerated colourspace with non-default parameters",
	58: "CIEJab enumerated colourspace with default parameters",
	59: "CIEJab enumerated colourspace with non-default parameters",
	60: "e-sRGB enumerated colorspace",
	61: "ROMM_RGB enumerated colorspace",
	62: "Non-square samples",
	63: "Deprecated - compositing layers have labels",
	64: "Deprecated - codestreams have labels",
	65: "Deprecated - compositing layers have different colour spaces",
	66: "Deprecated - compositing layers have different metadata",
	67: "GIS metadata XML box",
	68: "JPSEC extensions in codestream as specified by ISO/IEC 15444-8",
	69: "JP3D extensions in codestream as specified by ISO/IEC 15444-10",
	70: "Deprecated - compositing layer uses sYCC enumerated colour space",
	71: "e-sYCC enumerated colourspace",
	72: "JPEG 2000 Part 2 codestream as restricted by baseline conformance requirements in M.9.2.3",
	73: "YPbPr(1125/60) enumerated colourspace",
	74: "YPbPr(1250/50) enumerated colourspace",
}

// FeatureName describes a standard reader requirement feature
func FeatureName(f uint16) string {
	if n, ok := featureNames[f]; ok {
		return n
	}
	return fmt.Sprintf("unrecognized (raw value %d)", f)
}

// Feature is a standard feature flag and the mask of aspects it affects
type Feature struct {
	Flag uint16
	Mask uint64
}

// VendorFeature is a vendor feature and its mask
type VendorFeature struct {
	ID   uuid.UUID
	Mask uint64
}

// ReaderRequirements is the rreq box payload. Masks are MaskLength bytes
// wide on disk.
type ReaderRequirements struct {
	MaskLength      byte
	FullyUnderstood uint64
	DisplayComplete uint64
	Standard        []Feature
	Vendor          []VendorFeature
}

func readMask(c *binio.Cursor, n byte) (uint64, error) {
	b, err := c.ReadFixed(int(n))
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func appendMask(out []byte, v uint64, n byte) []byte {
	for i := int(n) - 1; i >= 0; i-- {
		out = append(out, byte(v>>(8*i)))
	}
	return out
}

func decodeReaderReqs(c *binio.Cursor) (Payload, error) {
	ml, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	switch ml {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("mask length %d is not 1, 2, 4 or 8", ml)
	}
	rr := &ReaderRequirements{MaskLength: ml}
	if rr.FullyUnderstood, err = readMask(c, ml); err != nil {
		return nil, err
	}
	if rr.DisplayComplete, err = readMask(c, ml); err != nil {
		return nil, err
	}
	nsf, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	for range nsf {
		var f Feature
		if f.Flag, err = c.ReadU16(); err != nil {
			return nil, err
		}
		if f.Mask, err = readMask(c, ml); err != nil {
			return nil, err
		}
		rr.Standard = append(rr.Standard, f)
	}
	nvf, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	for range nvf {
		raw, err := c.ReadFixed(16)
		if err != nil {
			return nil, err
		}
		v := VendorFeature{ID: uuid.UUID(raw)}
		if v.Mask, err = readMask(c, ml); err != nil {
			return nil, err
		}
		rr.Vendor = append(rr.Vendor, v)
	}
	return rr, nil
}

func (rr *ReaderRequirements) MarshalBinary() ([]byte, error) {
	switch rr.MaskLength {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("mask length %d is not 1, 2, 4 or 8", rr.MaskLength)
	}
	out := []byte{rr.MaskLength}
	out = appendMask(out, rr.FullyUnderstood, rr.MaskLength)
	out = appendMask(out, rr.DisplayComplete, rr.MaskLength)
	out = append(out, byte(len(rr.Standard)>>8), byte(len(rr.Standard)))
	for _, f := range rr.Standard {
		out = append(out, byte(f.Flag>>8), byte(f.Flag))
		out = appendMask(out, f.Mask, rr.MaskLength)
	}
	out = append(out, byte(len(rr.Vendor)>>8), byte(len(rr.Vendor)))
	for _, v := range rr.Vendor {
		out = append(out, v.ID[:]...)
		out = appendMask(out, v.Mask, rr.MaskLength)
	}
	return out, nil
}

func (rr *ReaderRequirements) Describe(options.Options) []string {
	lines := []string{
		fmt.Sprintf("Fully Understands Aspect Mask:  0x%x", rr.FullyUnderstood),
		fmt.Sprintf("Display Completely Mask:  0x%x", rr.DisplayComplete),
		"Standard Features and Masks:",
	}
	for _, f := range rr.Standard {
		lines = append(lines, fmt.Sprintf("%sFeature %03d:  0x%x %s", indent, f.Flag, f.Mask, FeatureName(f.Flag)))
	}
	lines = append(lines, "Vendor Features:")
	for _, v := range rr.Vendor {
		lines = append(lines, fmt.Sprintf("%sUUID %s", indent, v.ID))
	}
	return lines
}
