package jp2k

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/codestream"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodestream(t *testing.T, width, height int, comps []codestream.ComponentInfo) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := codestream.NewWriter(&buf)
	require.NoError(t, w.WriteSOC())
	require.NoError(t, w.WriteSIZ(codestream.BuildSIZ(width, height, comps, 0, 0)))
	require.NoError(t, w.WriteCOD(codestream.BuildDefaultCOD(1, 1, codestream.ProgressionLRCP, true)))
	require.NoError(t, w.WriteQCD(codestream.BuildDefaultQCD(1, 2)))
	require.NoError(t, w.WriteSOT(&codestream.SOTMarker{TilePartLen: 12 + 2 + 4, NumTileParts: 1}))
	require.NoError(t, w.WriteSOD())
	require.NoError(t, w.WriteBytes([]byte{1, 2, 3, 4}))
	require.NoError(t, w.WriteEOC())
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func rgbCodestream(t *testing.T) []byte {
	return testCodestream(t, 480, 800, codestream.UniformComponents(3, 8, false))
}

func testJacket(cs []byte) []*box.Box {
	return []*box.Box{
		box.NewSignature(),
		box.NewFileType(),
		box.NewSuper(box.TypeJP2Header,
			box.New(box.TypeImageHeader, &box.ImageHeader{Height: 800, Width: 480, NumComponents: 3, BitDepth: 8, Compression: box.CompressionWavelet}),
			box.NewColourSpec(box.ColourspaceSRGB),
		),
		box.New(box.TypeCodestream, box.NewContiguous(bytes.NewReader(cs), 0, int64(len(cs)))),
	}
}

func testJP2(t *testing.T) []byte {
	t.Helper()
	data, err := box.Marshal(testJacket(rgbCodestream(t))...)
	require.NoError(t, err)
	return data
}

func typesOf(boxes []*box.Box) []box.Type {
	out := make([]box.Type, len(boxes))
	for i, b := range boxes {
		out[i] = b.Type
	}
	return out
}

var jacketTypes = []box.Type{box.TypeSignature, box.TypeFileType, box.TypeJP2Header, box.TypeCodestream}

func TestOpen_MinimalContainer(t *testing.T) {
	f, err := ReadFile(testJP2(t))
	require.NoError(t, err)
	assert.Empty(t, f.Warnings)
	assert.False(t, f.IsCodestream())
	assert.Equal(t, box.BrandJP2, f.Brand())
	assert.Equal(t, jacketTypes, typesOf(f.Boxes))

	ihdr := box.Find(f.Boxes, box.TypeImageHeader)
	require.NotNil(t, ihdr)
	ih := ihdr.Payload.(*box.ImageHeader)
	assert.Equal(t, uint32(480), ih.Width)
	assert.Equal(t, uint32(800), ih.Height)
	assert.Equal(t, uint16(3), ih.NumComponents)
	assert.Same(t, ih, f.ImageHeader())
}

func TestOpen_BareCodestream(t *testing.T) {
	cs := rgbCodestream(t)
	f, err := ReadFile(cs)
	require.NoError(t, err)
	assert.True(t, f.IsCodestream())
	assert.Empty(t, f.Boxes)
	assert.Empty(t, f.Brand())
	assert.Empty(t, f.Warnings)

	rng, err := f.CodestreamRange()
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Offset: 0, Length: int64(len(cs))}, rng)
}

func TestOpen_Failures(t *testing.T) {
	jp2 := testJP2(t)
	sig, err := box.Marshal(box.NewSignature())
	require.NoError(t, err)
	xml, err := box.Marshal(box.NewXML("<a/>"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		data  []byte
		fatal bool
		is    error
	}{
		{name: "empty", data: nil, fatal: true},
		{name: "not jpeg 2000", data: []byte("GIF89a and some more bytes"), fatal: true},
		{name: "long signature box", data: append(box.Header(box.TypeSignature, 13), 0x0D, 0x0A, 0x87, 0x0A, 0), fatal: true},
		{name: "no file type", data: append(bytes.Clone(sig), xml...), fatal: true},
		{name: "signature only", data: sig, fatal: true},
		{name: "truncated extended header", data: append(bytes.Clone(jp2), 0, 0, 0, 1, 'x', 'm', 'l', ' ', 0, 0), is: jp2err.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ReadFile(tt.data)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.Equal(t, tt.fatal, jp2err.IsFatal(err))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestOpen_Warnings(t *testing.T) {
	cs := rgbCodestream(t)
	tests := []struct {
		name  string
		edit  func([]*box.Box) []*box.Box
		count int // after Open
		after int // after the codestream is parsed
	}{
		{
			name: "missing jp2h",
			edit: func(b []*box.Box) []*box.Box { return append(b[:2], b[3]) },
			// the ihdr/SIZ comparison needs a jp2h, so only one
			count: 1,
			after: 1,
		},
		{
			name: "size mismatch",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children[0].Payload.(*box.ImageHeader).Width = 10
				return b
			},
			count: 0,
			after: 1,
		},
		{
			name: "two codestreams",
			edit: func(b []*box.Box) []*box.Box {
				return append(b, box.New(box.TypeCodestream, box.NewContiguous(bytes.NewReader(cs), 0, int64(len(cs)))))
			},
			count: 1,
			after: 1,
		},
		{
			name: "vendor colour method",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children = append(b[2].Children, box.New(box.TypeColourSpec, &box.ColourSpec{Method: box.MethodVendor, Profile: make([]byte, 16)}))
				return b
			},
			count: 1,
			after: 1,
		},
		{
			name: "extra metadata",
			edit: func(b []*box.Box) []*box.Box {
				return append(b, box.New(box.TypeReaderReqs, &box.ReaderRequirements{MaskLength: 1}))
			},
			count: 0,
			after: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := box.Marshal(tt.edit(testJacket(cs))...)
			require.NoError(t, err)
			f, err := ReadFile(data)
			require.NoError(t, err)
			assert.Len(t, f.Warnings, tt.count)

			_, err = f.Codestream(true)
			require.NoError(t, err)
			_, err = f.Codestream(false)
			require.NoError(t, err)
			assert.Len(t, f.Warnings, tt.after)
			for _, w := range f.Warnings {
				assert.ErrorIs(t, w, jp2err.ErrValidation)
				assert.False(t, jp2err.IsFatal(w))
			}
		})
	}
}

func TestOpen_CodestreamIsLazy(t *testing.T) {
	bad := []byte{0xFF, 0x4F, 0x12, 0x34, 0x56}
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{
			name: "container",
			data: func(t *testing.T) []byte {
				data, err := box.Marshal(testJacket(bad)...)
				require.NoError(t, err)
				return data
			},
		},
		{
			name: "bare codestream",
			data: func(*testing.T) []byte { return bad },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ReadFile(tt.data(t))
			require.NoError(t, err)
			assert.Empty(t, f.Warnings)

			cs, err := f.Codestream(true)
			require.NoError(t, err)
			assert.ErrorIs(t, cs.Err, codestream.ErrInvalidMarker)
			require.Len(t, f.Warnings, 1)
			assert.ErrorIs(t, f.Warnings[0], codestream.ErrInvalidMarker)

			// the check runs once
			_, err = f.Codestream(true)
			require.NoError(t, err)
			assert.Len(t, f.Warnings, 1)
		})
	}
}

func TestOpen_TrailingBytes(t *testing.T) {
	jp2 := testJP2(t)
	f, err := ReadFile(append(bytes.Clone(jp2), 0, 0, 0, 9))
	require.NoError(t, err)
	assert.Equal(t, jacketTypes, typesOf(f.Boxes))
	require.Len(t, f.Warnings, 1)
	assert.ErrorIs(t, f.Warnings[0], jp2err.ErrValidation)
	assert.Contains(t, f.Warnings[0].Error(), "4 extra bytes at end of file ignored")
}

func TestFile_Ranges(t *testing.T) {
	data := testJP2(t)
	f, err := ReadFile(data)
	require.NoError(t, err)
	jp2c := f.Boxes[3]

	rng, err := f.CodestreamRange()
	require.NoError(t, err)
	assert.Equal(t, jp2c.Offset+8, rng.Offset)
	assert.Equal(t, int64(len(data)), rng.End())

	full, err := f.Codestream(false)
	require.NoError(t, err)
	sot := full.Find(codestream.MarkerSOT)
	require.NotNil(t, sot)

	hdr, err := f.MainHeaderRange()
	require.NoError(t, err)
	assert.Equal(t, rng.Offset, hdr.Offset)
	assert.Equal(t, sot.Offset, hdr.End())
	assert.Equal(t, []byte{0xFF, 0x4F}, data[hdr.Offset:hdr.Offset+2])

	header, err := f.Codestream(true)
	require.NoError(t, err)
	again, err := f.Codestream(true)
	require.NoError(t, err)
	assert.Same(t, header, again)
	f.ResetCodestream()
	again, err = f.Codestream(true)
	require.NoError(t, err)
	assert.NotSame(t, header, again)

	_, err = (&File{}).CodestreamRange()
	assert.ErrorIs(t, err, ErrNoCodestream)
}

func TestWrap_BareCodestream(t *testing.T) {
	cs := rgbCodestream(t)
	f, err := ReadFile(cs)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := f.Wrap(&buf, nil, WrapOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	wrapped, err := ReadFile(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, wrapped.Warnings)
	assert.Equal(t, jacketTypes, typesOf(wrapped.Boxes))
	assert.Equal(t, []box.Type{box.TypeImageHeader, box.TypeColourSpec}, typesOf(wrapped.Boxes[2].Children))

	ih := wrapped.ImageHeader()
	assert.Equal(t, &box.ImageHeader{Height: 800, Width: 480, NumComponents: 3, BitDepth: 8, Compression: box.CompressionWavelet}, ih)
	colr := wrapped.Boxes[2].Children[1].Payload.(*box.ColourSpec)
	assert.Equal(t, uint32(box.ColourspaceSRGB), colr.Colourspace)

	rng, err := wrapped.CodestreamRange()
	require.NoError(t, err)
	assert.Equal(t, cs, buf.Bytes()[rng.Offset:rng.End()])
}

func TestWrap_DerivedHeader(t *testing.T) {
	tests := []struct {
		name        string
		comps       []codestream.ComponentInfo
		depth       int
		bpcc        bool
		colourspace uint32
	}{
		{name: "greyscale", comps: codestream.UniformComponents(1, 12, true), depth: 12, colourspace: box.ColourspaceGreyscale},
		{
			name:        "mixed depths",
			comps:       append(codestream.UniformComponents(3, 8, false), codestream.ComponentInfo{Precision: 16, XRsiz: 1, YRsiz: 1}),
			bpcc:        true,
			colourspace: box.ColourspaceSRGB,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ReadFile(testCodestream(t, 16, 16, tt.comps))
			require.NoError(t, err)
			jacket, err := f.DefaultJacket()
			require.NoError(t, err)

			ih := jacket[2].Children[0].Payload.(*box.ImageHeader)
			assert.Equal(t, tt.depth, ih.BitDepth)
			assert.Equal(t, uint16(len(tt.comps)), ih.NumComponents)
			bpcc := box.Find(jacket, box.TypeBitsPerComp)
			assert.Equal(t, tt.bpcc, bpcc != nil)
			colr := box.Find(jacket, box.TypeColourSpec).Payload.(*box.ColourSpec)
			assert.Equal(t, tt.colourspace, colr.Colourspace)
		})
	}
}

func TestWrap_KeepsCallerBoxes(t *testing.T) {
	src, err := ReadFile(testJP2(t))
	require.NoError(t, err)
	jacket, err := src.DefaultJacket()
	require.NoError(t, err)
	before, err := box.Marshal(jacket...)
	require.NoError(t, err)

	for _, pos := range []int{2, 3} {
		boxes := append(append(append([]*box.Box{}, jacket[:pos]...), box.NewXML("<a>1</a>")), jacket[pos:]...)
		var buf bytes.Buffer
		_, err := src.Wrap(&buf, boxes, WrapOptions{ToEnd: true})
		require.NoError(t, err)

		out, err := ReadFile(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, box.TypeXML, out.Boxes[pos].Type)
		last := out.Boxes[len(out.Boxes)-1]
		assert.True(t, last.ToEnd)
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(buf.Bytes()[last.Offset:]))
	}

	after, err := box.Marshal(jacket...)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	for _, b := range jacket {
		assert.False(t, b.ToEnd)
	}
}

func TestValidateJacket(t *testing.T) {
	cs := rgbCodestream(t)
	cdef := func(channels ...box.Channel) *box.Box {
		return box.New(box.TypeChannelDef, &box.ChannelDef{Channels: channels})
	}
	tests := []struct {
		name string
		edit func([]*box.Box) []*box.Box
		ok   bool
	}{
		{name: "default", edit: func(b []*box.Box) []*box.Box { return b }, ok: true},
		{name: "no file type", edit: func(b []*box.Box) []*box.Box { return append(b[:1], b[2:]...) }},
		{name: "no codestream", edit: func(b []*box.Box) []*box.Box { return b[:3] }},
		{name: "codestream first", edit: func(b []*box.Box) []*box.Box { return []*box.Box{b[0], b[1], b[3], b[2]} }},
		{
			name: "ihdr not first",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children[0], b[2].Children[1] = b[2].Children[1], b[2].Children[0]
				return b
			},
		},
		{
			name: "no colr",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children = b[2].Children[:1]
				return b
			},
		},
		{
			name: "top level cdef",
			edit: func(b []*box.Box) []*box.Box { return append(b, cdef()) },
		},
		{
			name: "two cdef",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children = append(b[2].Children, cdef(), cdef())
				return b
			},
		},
		{
			name: "srgb cdef missing blue",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children = append(b[2].Children, cdef(
					box.Channel{Index: 0, Type: box.ChannelColour, Association: 1},
					box.Channel{Index: 1, Type: box.ChannelColour, Association: 2},
					box.Channel{Index: 2, Type: box.ChannelOpacity, Association: 3},
				))
				return b
			},
		},
		{
			name: "srgb cdef with alpha",
			edit: func(b []*box.Box) []*box.Box {
				b[2].Children = append(b[2].Children, cdef(
					box.Channel{Index: 0, Type: box.ChannelColour, Association: 1},
					box.Channel{Index: 1, Type: box.ChannelColour, Association: 2},
					box.Channel{Index: 2, Type: box.ChannelColour, Association: 3},
					box.Channel{Index: 3, Type: box.ChannelOpacity, Association: box.AssociationWholeImage},
				))
				return b
			},
			ok: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJacket(tt.edit(testJacket(cs)))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, jp2err.IsFatal(err), "%v", err)
		})
	}
}

func TestAppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jp2")
	before := testJP2(t)
	require.NoError(t, os.WriteFile(path, before, 0o644))
	f, err := ReadFile(before)
	require.NoError(t, err)

	n, err := AppendFile(path, box.NewXML("<a>1</a>"))
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after[:len(before)])

	g, err := ReadFile(after)
	require.NoError(t, err)
	assert.Len(t, g.Boxes, len(f.Boxes)+1)
	last := g.Boxes[len(g.Boxes)-1]
	assert.Equal(t, int64(len(before)), last.Offset)
	assert.Equal(t, "<a>1</a>", last.Payload.(*box.XML).Text)
}

func TestAppend_LengthZeroLastBox(t *testing.T) {
	src, err := ReadFile(rgbCodestream(t))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = src.Wrap(&buf, nil, WrapOptions{ToEnd: true})
	require.NoError(t, err)
	before := bytes.Clone(buf.Bytes())

	m := &memFile{data: bytes.Clone(before)}
	f, err := Open(m, int64(len(m.data)))
	require.NoError(t, err)
	jp2c := f.Boxes[3]
	require.True(t, jp2c.ToEnd)

	id := uuid.MustParse("3a0d0218-0ae9-4115-b376-4bca41ce0e71")
	_, err = f.Append(m, box.NewUUID(id, []byte{1, 2, 3}))
	require.NoError(t, err)

	// only the length field of the jp2c box changed
	assert.Equal(t, uint32(len(before))-uint32(jp2c.Offset), binary.BigEndian.Uint32(m.data[jp2c.Offset:]))
	assert.Equal(t, before[:jp2c.Offset], m.data[:jp2c.Offset])
	assert.Equal(t, before[jp2c.Offset+4:], m.data[jp2c.Offset+4:len(before)])

	g, err := Open(m, int64(len(m.data)))
	require.NoError(t, err)
	assert.Empty(t, g.Warnings)
	assert.False(t, g.Boxes[3].ToEnd)
	assert.Equal(t, box.TypeUUID, g.Boxes[4].Type)
	assert.Equal(t, id, g.Boxes[4].Payload.(*box.UUID).ID)
	assert.Equal(t, typesOf(f.Boxes), typesOf(g.Boxes))
}

func TestAppend_Rejected(t *testing.T) {
	jpx := testJacket(rgbCodestream(t))
	jpx[1] = box.New(box.TypeFileType, &box.FileType{Brand: box.BrandJPX, Compatibility: []string{box.BrandJPX, box.BrandJP2}})
	jpxData, err := box.Marshal(jpx...)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		box  *box.Box
	}{
		{name: "label box", data: testJP2(t), box: box.NewLabel("no")},
		{name: "bare codestream", data: rgbCodestream(t), box: box.NewXML("<a/>")},
		{name: "jpx brand", data: jpxData, box: box.NewXML("<a/>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &memFile{data: bytes.Clone(tt.data)}
			f, err := Open(m, int64(len(m.data)))
			require.NoError(t, err)
			_, err = f.Append(m, tt.box)
			assert.True(t, jp2err.IsFatal(err))
			assert.Equal(t, tt.data, m.data)
		})
	}
}

type memFile struct {
	data []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	return copy(m.data[off:], p), nil
}

type fakeCodec struct {
	rng  ByteRange
	req  DecodeRequest
	head []byte
}

func (c *fakeCodec) Name() string { return "fake" }

func (c *fakeCodec) Decode(_ context.Context, r io.ReaderAt, rng ByteRange, req DecodeRequest) (image.Image, error) {
	c.rng, c.req = rng, req
	c.head = make([]byte, 2)
	if _, err := r.ReadAt(c.head, rng.Offset); err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (c *fakeCodec) Encode(context.Context, io.Writer, image.Image, CodingParams) error {
	return errors.New("encode not supported")
}

func TestCodec(t *testing.T) {
	fc := &fakeCodec{}
	RegisterCodec(fc)
	assert.Same(t, fc, CodecByName("fake"))
	assert.Nil(t, CodecByName("missing"))
	assert.Contains(t, Codecs(), "fake")

	f, err := ReadFile(testJP2(t))
	require.NoError(t, err)
	img, err := f.Decode(context.Background(), fc, DecodeRequest{Tile: -1})
	require.NoError(t, err)
	assert.NotNil(t, img)

	rng, err := f.CodestreamRange()
	require.NoError(t, err)
	assert.Equal(t, rng, fc.rng)
	assert.Equal(t, []byte{0xFF, 0x4F}, fc.head)
	assert.Equal(t, 1, fc.req.Threads)
	assert.Equal(t, -1, fc.req.Tile)
}

func TestCodingParamsFromCodestream(t *testing.T) {
	f, err := ReadFile(rgbCodestream(t))
	require.NoError(t, err)
	cs, err := f.Codestream(true)
	require.NoError(t, err)

	p, err := CodingParamsFromCodestream(cs)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Layers)
	assert.Equal(t, 1, p.Levels)
	assert.Equal(t, codestream.ProgressionLRCP, p.Progression)
	assert.False(t, p.Irreversible)
	assert.True(t, p.MCT)
	assert.Zero(t, p.TileWidth)

	_, err = CodingParamsFromCodestream(&codestream.Codestream{})
	assert.Error(t, err)
}
