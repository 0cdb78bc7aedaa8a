package jp2k

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
)

// Appendable lists the box types Append accepts
var Appendable = map[box.Type]bool{
	box.TypeXML:  true,
	box.TypeUUID: true,
}

// Append writes b after the last byte of the file through w, which must
// address the same bytes the file was opened from. Only xml and uuid boxes
// may be appended, and only to jp2 brand files. A trailing length-0 box
// first has its length field rewritten to the explicit value; no other
// existing byte is touched. The appended box is added to f.Boxes.
func (f *File) Append(w io.WriterAt, b *box.Box) (int64, error) {
	if !Appendable[b.Type] {
		return 0, jp2err.Fatal("only xml and uuid boxes may be appended, not %q", b.Type)
	}
	if f.IsCodestream() || f.Brand() != box.BrandJP2 {
		return 0, jp2err.Fatal("only jp2 files may be appended to")
	}
	if len(f.Boxes) == 0 {
		return 0, jp2err.Fatal("the file has no boxes")
	}

	last := f.Boxes[len(f.Boxes)-1]
	if last.ToEnd {
		length := f.size - last.Offset
		if length > math.MaxUint32 {
			return 0, fmt.Errorf("the last box is %d bytes and cannot take a 32-bit length in place", length)
		}
		if _, err := w.WriteAt(binary.BigEndian.AppendUint32(nil, uint32(length)), last.Offset); err != nil {
			return 0, fmt.Errorf("rewriting the length of the last box: %w", err)
		}
		last.ToEnd = false
		last.Length = length
	}

	added := b.Clone()
	added.ToEnd = false
	data, err := box.Marshal(added)
	if err != nil {
		return 0, err
	}
	n, err := w.WriteAt(data, f.size)
	if err != nil {
		return int64(n), err
	}
	added.Offset, added.Length, added.Extended = f.size, int64(n), len(data) > 8 && binary.BigEndian.Uint32(data) == 1
	f.Boxes = append(f.Boxes, added)
	f.size += int64(n)
	return int64(n), nil
}

// AppendFile opens path, appends b and closes it again
func AppendFile(path string, b *box.Box) (int64, error) {
	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return 0, err
	}
	f, err := Open(fh, st.Size())
	if err != nil {
		fh.Close()
		return 0, err
	}
	n, err := f.Append(fh, b)
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	return n, err
}
