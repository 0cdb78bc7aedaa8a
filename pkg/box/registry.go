package box

import (
	"encoding"
	"sync"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// Payload is the decoded body of a leaf box
type Payload interface {
	encoding.BinaryMarshaler
	// Describe returns the rendered field lines, unindented
	Describe(o options.Options) []string
}

// DecodeFunc decodes a payload from a cursor bounded to the payload bytes
type DecodeFunc func(c *binio.Cursor) (Payload, error)

// Descriptor states how a box type is parsed and rendered
type Descriptor struct {
	Name   string // long name, e.g. "Image Header"
	Super  bool   // payload is a sequence of boxes
	Decode DecodeFunc
}

var (
	registryMu sync.RWMutex
	registry   map[Type]Descriptor
)

// The table is filled in init so decoders may parse nested boxes.
func init() {
	registry = map[Type]Descriptor{
		TypeSignature:      {Name: "JPEG 2000 Signature", Decode: decodeSignature},
		TypeFileType:       {Name: "File Type", Decode: decodeFileType},
		TypeJP2Header:      {Name: "JP2 Header", Super: true},
		TypeImageHeader:    {Name: "Image Header", Decode: decodeImageHeader},
		TypeBitsPerComp:    {Name: "Bits Per Component", Decode: decodeBitsPerComp},
		TypeColourSpec:     {Name: "Colour Specification", Decode: decodeColourSpec},
		TypePalette:        {Name: "Palette", Decode: decodePalette},
		TypeComponentMap:   {Name: "Component Mapping", Decode: decodeComponentMap},
		TypeChannelDef:     {Name: "Channel Definition", Decode: decodeChannelDef},
		TypeResolution:     {Name: "Resolution", Super: true},
		TypeCaptureRes:     {Name: "Capture Resolution", Decode: decodeCaptureRes},
		TypeDisplayRes:     {Name: "Display Resolution", Decode: decodeDisplayRes},
		TypeCodestream:     {Name: "Contiguous Codestream", Decode: decodeCodestream},
		TypeIPR:            {Name: "Intellectual Property", Decode: decodeOpaque},
		TypeCodestreamHdr:  {Name: "Codestream Header", Super: true},
		TypeCompositingHdr: {Name: "Compositing Layer Header", Super: true},
		TypeColourGroup:    {Name: "Colour Group", Super: true},
		TypeXML:            {Name: "XML", Decode: decodeXML},
		TypeUUID:           {Name: "UUID", Decode: decodeUUID},
		TypeUUIDInfo:       {Name: "UUIDInfo", Super: true},
		TypeUUIDList:       {Name: "UUID List", Decode: decodeUUIDList},
		TypeURL:            {Name: "Data Entry URL", Decode: decodeURL},
		TypeAssociation:    {Name: "Association", Super: true},
		TypeLabel:          {Name: "Label", Decode: decodeLabel},
		TypeNumberList:     {Name: "Number List", Decode: decodeNumberList},
		TypeReaderReqs:     {Name: "Reader Requirements", Decode: decodeReaderReqs},
		TypeFragmentTable:  {Name: "Fragment Table", Super: true},
		TypeFragmentList:   {Name: "Fragment List", Decode: decodeFragmentList},
		TypeDataReference:  {Name: "Data Reference", Decode: decodeDataReference},
		TypeFree:           {Name: "Free", Decode: decodeOpaque},
	}
}

// Register adds or replaces the descriptor for t. A nil Decode on a leaf
// descriptor keeps the payload as raw bytes.
func Register(t Type, d Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = d
}

// Lookup returns the descriptor for t
func Lookup(t Type) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[t]
	return d, ok
}
