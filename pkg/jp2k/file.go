// Package jp2k opens JPEG 2000 files, either JP2/JPX containers or bare
// codestreams, and rewraps and extends them.
package jp2k

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/codestream"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

// ErrNoCodestream is returned when a file has no usable jp2c box
var ErrNoCodestream = errors.New("no contiguous codestream")

// socMarker opens every bare codestream
var socMarker = []byte{0xFF, 0x4F}

// ByteRange is a span of the source
type ByteRange struct {
	Offset int64
	Length int64
}

// End returns the offset just past the range
func (r ByteRange) End() int64 {
	return r.Offset + r.Length
}

// File is a parsed JPEG 2000 file. The box tree is built once by Open and
// may be read concurrently; the codestream caches are guarded.
type File struct {
	Boxes []*box.Box
	// Warnings collects every anomaly found by Open: the errors and warnings
	// recorded on boxes plus the file level checks. The codestream checks
	// are added by the first call to Codestream.
	Warnings []error

	src    io.ReaderAt
	size   int64
	bare   *box.Contiguous // set for a bare codestream
	closer io.Closer

	checked sync.Once
}

// Open parses a file of size bytes. A ValidationError marked fatal is
// returned when the input is neither a bare codestream nor starts with the
// signature and file type boxes; an error is also returned when the extent
// of a top level box cannot be determined.
func Open(r io.ReaderAt, size int64) (*File, error) {
	f := &File{src: r, size: size}
	c := binio.NewCursor(r, size)
	if bytes.Equal(c.Peek(2), socMarker) {
		f.bare = box.NewContiguous(r, 0, size)
		return f, nil
	}
	if err := checkSignature(c.Peek(12)); err != nil {
		return nil, err
	}
	boxes, err := box.Parse(c)
	var extra int64
	if err != nil {
		// fewer bytes than a box header after the last box are ignored
		if extra = trailing(boxes, size); extra <= 0 || extra >= 8 {
			return nil, fmt.Errorf("parsing boxes: %w", err)
		}
	}
	if len(boxes) < 2 || boxes[1].Type != box.TypeFileType {
		return nil, jp2err.Fatal("the second box must be the file type box")
	}
	f.Boxes = boxes
	box.Walk(boxes, func(b *box.Box) {
		if b.Err != nil {
			f.Warnings = append(f.Warnings, b.Err)
		}
		f.Warnings = append(f.Warnings, b.Warnings...)
	})
	if extra > 0 {
		f.warn(jp2err.Invalid("%d extra bytes at end of file ignored", extra))
	}
	f.validate()
	return f, nil
}

// OpenFile opens and parses a file on disk. Close releases it.
func OpenFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, err
	}
	f, err := Open(fh, st.Size())
	if err != nil {
		fh.Close()
		return nil, err
	}
	f.closer = fh
	return f, nil
}

// ReadFile parses a file held in memory
func ReadFile(data []byte) (*File, error) {
	return Open(bytes.NewReader(data), int64(len(data)))
}

// Close releases the file opened by OpenFile
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

func checkSignature(head []byte) error {
	want := append(box.Header(box.TypeSignature, 12), box.SignatureMagic[:]...)
	if !bytes.Equal(head, want) {
		return jp2err.Fatal("not a JPEG 2000 file: expected a codestream or a 12 byte signature box")
	}
	return nil
}

// Size returns the size of the source
func (f *File) Size() int64 {
	return f.size
}

// Source returns the bytes the tree was parsed from
func (f *File) Source() io.ReaderAt {
	return f.src
}

// IsCodestream reports whether the file is a bare codestream
func (f *File) IsCodestream() bool {
	return f.bare != nil
}

// FileType returns the ftyp payload, nil for a bare codestream
func (f *File) FileType() *box.FileType {
	if b := first(f.Boxes, box.TypeFileType); b != nil {
		ft, _ := b.Payload.(*box.FileType)
		return ft
	}
	return nil
}

// Brand returns the file type brand, empty for a bare codestream
func (f *File) Brand() string {
	if ft := f.FileType(); ft != nil {
		return ft.Brand
	}
	return ""
}

// ImageHeader returns the ihdr payload of the first jp2h box
func (f *File) ImageHeader() *box.ImageHeader {
	jp2h := first(f.Boxes, box.TypeJP2Header)
	if jp2h == nil {
		return nil
	}
	for _, c := range jp2h.Children {
		if ih, ok := c.Payload.(*box.ImageHeader); ok {
			return ih
		}
	}
	return nil
}

// Contiguous returns the payload of the first top level jp2c box, or the
// whole source for a bare codestream
func (f *File) Contiguous() (*box.Contiguous, error) {
	if f.bare != nil {
		return f.bare, nil
	}
	b := first(f.Boxes, box.TypeCodestream)
	if b == nil {
		return nil, ErrNoCodestream
	}
	p, ok := b.Payload.(*box.Contiguous)
	if !ok {
		return nil, fmt.Errorf("%w: the jp2c box at %d is corrupt", ErrNoCodestream, b.Offset)
	}
	return p, nil
}

// Codestream parses the codestream in header-only or full mode. Each mode is
// parsed once and cached until ResetCodestream. Open never parses the
// codestream; the first call here also compares its main header with the
// image header and adds what it finds to Warnings.
func (f *File) Codestream(headerOnly bool) (*codestream.Codestream, error) {
	p, err := f.Contiguous()
	if err != nil {
		return nil, err
	}
	f.checked.Do(f.checkCodestream)
	return p.Codestream(headerOnly), nil
}

// ResetCodestream drops the cached codestream parses
func (f *File) ResetCodestream() {
	if p, err := f.Contiguous(); err == nil {
		p.Reset()
	}
}

// CodestreamRange returns the span of the codestream in the source
func (f *File) CodestreamRange() (ByteRange, error) {
	p, err := f.Contiguous()
	if err != nil {
		return ByteRange{}, err
	}
	return ByteRange{Offset: p.Offset, Length: p.Length}, nil
}

// MainHeaderRange returns the span from SOC up to the first SOT
func (f *File) MainHeaderRange() (ByteRange, error) {
	cs, err := f.Codestream(true)
	if err != nil {
		return ByteRange{}, err
	}
	if cs.HeaderLength == 0 {
		if cs.Err != nil {
			return ByteRange{}, fmt.Errorf("main header: %w", cs.Err)
		}
		return ByteRange{}, fmt.Errorf("main header: no tile part found")
	}
	return ByteRange{Offset: cs.Offset, Length: cs.HeaderLength}, nil
}

// trailing returns the bytes after the last box
func trailing(boxes []*box.Box, size int64) int64 {
	if len(boxes) == 0 {
		return 0
	}
	last := boxes[len(boxes)-1]
	return size - (last.Offset + last.Length)
}

// first returns the first top level box of type t
func first(boxes []*box.Box, t box.Type) *box.Box {
	for _, b := range boxes {
		if b.Type == t {
			return b
		}
	}
	return nil
}
