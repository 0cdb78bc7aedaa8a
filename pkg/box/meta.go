package box

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// Unknown holds the raw payload of a box that was not decoded, either
// because its type is unregistered or because decoding failed.
type Unknown struct {
	Claimed Type
	Data    []byte
}

func (u *Unknown) MarshalBinary() ([]byte, error) {
	return bytes.Clone(u.Data), nil
}

func (u *Unknown) Describe(options.Options) []string {
	return []string{
		"Claimed ID:  '" + u.Claimed.String() + "'",
		fmt.Sprintf("Data:  %d bytes", len(u.Data)),
	}
}

func (u *Unknown) ClonePayload() Payload {
	return &Unknown{Claimed: u.Claimed, Data: bytes.Clone(u.Data)}
}

// Opaque is a payload kept as bytes with no structure, e.g. free or jp2i
type Opaque struct {
	Data []byte
}

func decodeOpaque(c *binio.Cursor) (Payload, error) {
	data, err := c.ReadRest()
	if err != nil {
		return nil, err
	}
	return &Opaque{Data: data}, nil
}

func (o *Opaque) MarshalBinary() ([]byte, error) {
	return bytes.Clone(o.Data), nil
}

func (o *Opaque) Describe(options.Options) []string {
	return []string{fmt.Sprintf("Data:  %d bytes", len(o.Data))}
}

// Well known uuid box identifiers
var (
	UUIDXMP     = uuid.MustParse("be7acfcb-97a9-42e8-9c71-999491e3afac")
	UUIDGeoTIFF = uuid.MustParse("b14bf8bd-083d-4b43-a5ae-8cd7d5a6ce03")
	UUIDExif    = uuid.UUID([]byte("JpgTiffExif->JP2"))
)

// UUID is the uuid box payload. XMP is set when the data is an XMP packet.
type UUID struct {
	ID   uuid.UUID
	Data []byte
	XMP  *XML `json:"-"`
}

// NewUUID builds a uuid box
func NewUUID(id uuid.UUID, data []byte) *Box {
	u := &UUID{ID: id, Data: data}
	if id == UUIDXMP {
		u.XMP = ParseXML(data)
	}
	return New(TypeUUID, u)
}

func decodeUUID(c *binio.Cursor) (Payload, error) {
	raw, err := c.ReadFixed(16)
	if err != nil {
		return nil, err
	}
	data, err := c.ReadRest()
	if err != nil {
		return nil, err
	}
	u := &UUID{ID: uuid.UUID(raw), Data: data}
	if u.ID == UUIDXMP {
		u.XMP = ParseXML(data)
	}
	return u, nil
}

// Kind names the payload type recognized from the identifier
func (u *UUID) Kind() string {
	switch u.ID {
	case UUIDXMP:
		return "XMP"
	case UUIDGeoTIFF:
		return "GeoTIFF"
	case UUIDExif:
		return "EXIF"
	}
	return "unknown"
}

func (u *UUID) MarshalBinary() ([]byte, error) {
	return append(bytes.Clone(u.ID[:]), u.Data...), nil
}

func (u *UUID) Describe(o options.Options) []string {
	lines := []string{fmt.Sprintf("UUID:  %s (%s)", u.ID, u.Kind())}
	switch u.Kind() {
	case "XMP":
		if !o.PrintXML {
			return lines
		}
		lines = append(lines, "UUID Data:")
		for _, l := range u.XMP.Describe(o) {
			lines = append(lines, indent+l)
		}
	case "EXIF", "GeoTIFF":
		lines = append(lines, "UUID Data:  "+tiffSummary(u.Data))
	default:
		lines = append(lines, fmt.Sprintf("UUID Data:  %d bytes", len(u.Data)))
	}
	return lines
}

func (u *UUID) Validate() []error {
	if u.XMP != nil {
		return u.XMP.Validate()
	}
	return nil
}

// tiffSummary reports the byte order and size of an embedded TIFF stream.
// Exif payloads may carry an "Exif\x00\x00" preamble.
func tiffSummary(data []byte) string {
	d := bytes.TrimPrefix(data, []byte("Exif\x00\x00"))
	if len(d) < 8 {
		return fmt.Sprintf("%d bytes", len(data))
	}
	var order binary.ByteOrder
	switch string(d[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return fmt.Sprintf("%d bytes", len(data))
	}
	return fmt.Sprintf("TIFF (%s, magic %d, first IFD @ %d), %d bytes", order, order.Uint16(d[2:4]), order.Uint32(d[4:8]), len(data))
}

// UUIDList is the ulst box payload
type UUIDList struct {
	IDs []uuid.UUID
}

func decodeUUIDList(c *binio.Cursor) (Payload, error) {
	n, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	ul := &UUIDList{}
	for range n {
		raw, err := c.ReadFixed(16)
		if err != nil {
			return nil, err
		}
		ul.IDs = append(ul.IDs, uuid.UUID(raw))
	}
	return ul, nil
}

func (ul *UUIDList) MarshalBinary() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(ul.IDs)))
	for _, id := range ul.IDs {
		out = append(out, id[:]...)
	}
	return out, nil
}

func (ul *UUIDList) Describe(options.Options) []string {
	lines := make([]string, len(ul.IDs))
	for i, id := range ul.IDs {
		lines[i] = fmt.Sprintf("UUID[%d]:  %s", i, id)
	}
	return lines
}

// URL is the url box payload
type URL struct {
	Version byte
	Flags   [3]byte
	URL     string
}

// NewURL builds a url box
func NewURL(location string) *Box {
	return New(TypeURL, &URL{URL: location})
}

func decodeURL(c *binio.Cursor) (Payload, error) {
	head, err := c.ReadFixed(4)
	if err != nil {
		return nil, err
	}
	rest, err := c.ReadRest()
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	if !utf8.Valid(rest) {
		return nil, fmt.Errorf("url is not valid UTF-8")
	}
	u := &URL{Version: head[0], URL: string(rest)}
	copy(u.Flags[:], head[1:4])
	return u, nil
}

func (u *URL) MarshalBinary() ([]byte, error) {
	out := append([]byte{u.Version}, u.Flags[:]...)
	out = append(out, u.URL...)
	return append(out, 0), nil
}

func (u *URL) Describe(options.Options) []string {
	return []string{
		fmt.Sprintf("Version:  %d", u.Version),
		fmt.Sprintf("Flag:  %d %d %d", u.Flags[0], u.Flags[1], u.Flags[2]),
		fmt.Sprintf("URL:  %q", u.URL),
	}
}

// Label is the lbl box payload
type Label struct {
	Text string
}

// NewLabel builds a lbl box
func NewLabel(text string) *Box {
	return New(TypeLabel, &Label{Text: text})
}

func decodeLabel(c *binio.Cursor) (Payload, error) {
	raw, err := c.ReadRest()
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("label is not valid UTF-8")
	}
	return &Label{Text: string(raw)}, nil
}

func (l *Label) MarshalBinary() ([]byte, error) {
	return []byte(l.Text), nil
}

func (l *Label) Describe(options.Options) []string {
	return []string{"Label:  " + l.Text}
}

// Number list association kinds, stored in the top byte of an entry
const (
	AssociatedCodestream = 1
	AssociatedLayer      = 2
)

// NumberList is the nlst box payload
type NumberList struct {
	Associations []uint32
}

func decodeNumberList(c *binio.Cursor) (Payload, error) {
	if c.Remaining()%4 != 0 {
		return nil, fmt.Errorf("number list of %d bytes is not a multiple of 4", c.Remaining())
	}
	nl := &NumberList{}
	for c.Remaining() > 0 {
		v, _ := c.ReadU32()
		nl.Associations = append(nl.Associations, v)
	}
	return nl, nil
}

func (nl *NumberList) MarshalBinary() ([]byte, error) {
	var out []byte
	for _, v := range nl.Associations {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out, nil
}

func (nl *NumberList) Describe(options.Options) []string {
	lines := make([]string, len(nl.Associations))
	for i, v := range nl.Associations {
		var what string
		switch {
		case v == 0:
			what = "the rendered result"
		case v>>24 == AssociatedCodestream:
			what = fmt.Sprintf("codestream %d", v&0xFFFFFF)
		case v>>24 == AssociatedLayer:
			what = fmt.Sprintf("compositing layer %d", v&0xFFFFFF)
		default:
			what = "unrecognized"
		}
		lines[i] = fmt.Sprintf("Association[%d]:  %s", i, what)
	}
	return lines
}

// Fragment locates one piece of a fragmented codestream. Reference 0 means
// the fragment is in this file, otherwise it indexes the dtbl entries.
type Fragment struct {
	Offset    uint64
	Length    uint32
	Reference uint16
}

// FragmentList is the flst box payload
type FragmentList struct {
	Fragments []Fragment
}

func decodeFragmentList(c *binio.Cursor) (Payload, error) {
	n, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	fl := &FragmentList{}
	for range n {
		b, err := c.ReadFixed(14)
		if err != nil {
			return nil, err
		}
		fl.Fragments = append(fl.Fragments, Fragment{
			Offset:    binary.BigEndian.Uint64(b[0:8]),
			Length:    binary.BigEndian.Uint32(b[8:12]),
			Reference: binary.BigEndian.Uint16(b[12:14]),
		})
	}
	return fl, nil
}

func (fl *FragmentList) MarshalBinary() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(fl.Fragments)))
	for _, f := range fl.Fragments {
		out = binary.BigEndian.AppendUint64(out, f.Offset)
		out = binary.BigEndian.AppendUint32(out, f.Length)
		out = binary.BigEndian.AppendUint16(out, f.Reference)
	}
	return out, nil
}

func (fl *FragmentList) Describe(options.Options) []string {
	var lines []string
	for i, f := range fl.Fragments {
		lines = append(lines,
			fmt.Sprintf("Offset %d:  %d", i, f.Offset),
			fmt.Sprintf("Fragment Length %d:  %d", i, f.Length),
			fmt.Sprintf("Data Reference %d:  %d", i, f.Reference),
		)
	}
	return lines
}

// DataReference is the dtbl box payload, a counted list of url boxes
type DataReference struct {
	URLs []*Box
}

func decodeDataReference(c *binio.Cursor) (Payload, error) {
	n, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	urls, err := Parse(c)
	if err != nil {
		return nil, err
	}
	if len(urls) != int(n) {
		return nil, fmt.Errorf("data reference declares %d entries, found %d", n, len(urls))
	}
	return &DataReference{URLs: urls}, nil
}

func (dr *DataReference) MarshalBinary() ([]byte, error) {
	body, err := Marshal(dr.URLs...)
	if err != nil {
		return nil, err
	}
	return append(binary.BigEndian.AppendUint16(nil, uint16(len(dr.URLs))), body...), nil
}

func (dr *DataReference) Describe(o options.Options) []string {
	var lines []string
	for _, u := range dr.URLs {
		lines = append(lines, strings.Split(Format(u, o), "\n")...)
	}
	return lines
}

func (dr *DataReference) ClonePayload() Payload {
	c := &DataReference{URLs: make([]*Box, len(dr.URLs))}
	for i, u := range dr.URLs {
		c.URLs[i] = u.Clone()
	}
	return c
}
