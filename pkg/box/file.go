package box

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// SignatureMagic is the payload of the jP box
var SignatureMagic = [4]byte{0x0D, 0x0A, 0x87, 0x0A}

// Brands
const (
	BrandJP2  = "jp2 "
	BrandJPX  = "jpx "
	BrandJPXB = "jpxb"
)

// Validator is implemented by payloads that can report non-fatal problems
// with their field values
type Validator interface {
	Validate() []error
}

// Signature is the jP box payload
type Signature struct {
	Magic [4]byte
}

// NewSignature returns the standard signature box
func NewSignature() *Box {
	return New(TypeSignature, &Signature{Magic: SignatureMagic})
}

func decodeSignature(c *binio.Cursor) (Payload, error) {
	b, err := c.ReadFixed(4)
	if err != nil {
		return nil, err
	}
	s := &Signature{}
	copy(s.Magic[:], b)
	return s, nil
}

func (s *Signature) MarshalBinary() ([]byte, error) {
	return bytes.Clone(s.Magic[:]), nil
}

func (s *Signature) Describe(options.Options) []string {
	return []string{fmt.Sprintf("Signature:  %02x%02x%02x%02x", s.Magic[0], s.Magic[1], s.Magic[2], s.Magic[3])}
}

func (s *Signature) Validate() []error {
	if s.Magic != SignatureMagic {
		return []error{jp2err.Invalid("signature %x does not match %x", s.Magic, SignatureMagic)}
	}
	return nil
}

// FileType is the ftyp box payload
type FileType struct {
	Brand         string
	MinorVersion  uint32
	Compatibility []string
}

// NewFileType returns a jp2 file type box
func NewFileType() *Box {
	return New(TypeFileType, &FileType{Brand: BrandJP2, Compatibility: []string{BrandJP2}})
}

func decodeFileType(c *binio.Cursor) (Payload, error) {
	if c.Remaining() < 8 || c.Remaining()%4 != 0 {
		return nil, fmt.Errorf("file type payload of %d bytes", c.Remaining())
	}
	brand, _ := c.ReadFixed(4)
	ft := &FileType{Brand: string(brand)}
	ft.MinorVersion, _ = c.ReadU32()
	for c.Remaining() > 0 {
		cl, _ := c.ReadFixed(4)
		ft.Compatibility = append(ft.Compatibility, string(cl))
	}
	return ft, nil
}

func (f *FileType) MarshalBinary() ([]byte, error) {
	if len(f.Brand) != 4 {
		return nil, fmt.Errorf("brand %q is not 4 characters", f.Brand)
	}
	out := append([]byte(f.Brand), binary.BigEndian.AppendUint32(nil, f.MinorVersion)...)
	for _, c := range f.Compatibility {
		if len(c) != 4 {
			return nil, fmt.Errorf("compatibility entry %q is not 4 characters", c)
		}
		out = append(out, c...)
	}
	return out, nil
}

func (f *FileType) Describe(options.Options) []string {
	quoted := make([]string, len(f.Compatibility))
	for i, c := range f.Compatibility {
		quoted[i] = "'" + c + "'"
	}
	return []string{
		"Brand:  " + f.Brand,
		"Compatibility:  [" + strings.Join(quoted, ", ") + "]",
	}
}

func (f *FileType) Validate() []error {
	if f.Brand != BrandJP2 && f.Brand != BrandJPX {
		return []error{jp2err.Invalid("the file type brand was %q, it should be either %q or %q", f.Brand, BrandJP2, BrandJPX)}
	}
	return nil
}

// Compatible reports whether brand appears in the compatibility list
func (f *FileType) Compatible(brand string) bool {
	for _, c := range f.Compatibility {
		if c == brand {
			return true
		}
	}
	return false
}
