package codestream

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jpfielding/jp2k.go/pkg/jp2err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStream struct {
	scod     byte
	prog     ProgressionOrder
	qcc      *QCCMarker
	com      *COMMarker
	tileData []byte
	psotZero bool
	noEOC    bool
}

func buildStream(t *testing.T, ts testStream) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	cod := BuildDefaultCOD(1, 1, ts.prog, true)
	cod.Scod = ts.scod

	require.NoError(t, w.WriteSOC())
	require.NoError(t, w.WriteSIZ(BuildSIZ(8, 8, UniformComponents(3, 8, false), 0, 0)))
	require.NoError(t, w.WriteCOD(cod))
	require.NoError(t, w.WriteQCD(BuildDefaultQCD(1, 2)))
	if ts.qcc != nil {
		require.NoError(t, w.WriteQCC(ts.qcc, 3))
	}
	if ts.com != nil {
		require.NoError(t, w.WriteCOM(ts.com))
	}
	psot := uint32(12 + 2 + len(ts.tileData))
	if ts.psotZero {
		psot = 0
	}
	require.NoError(t, w.WriteSOT(&SOTMarker{TilePartLen: psot, NumTileParts: 1}))
	require.NoError(t, w.WriteSOD())
	require.NoError(t, w.WriteBytes(ts.tileData))
	if !ts.noEOC {
		require.NoError(t, w.WriteEOC())
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func markers(cs *Codestream) []Marker {
	out := make([]Marker, len(cs.Segments))
	for i, s := range cs.Segments {
		out[i] = s.Marker
	}
	return out
}

func TestParse_HeaderOnlyStopsAtSOT(t *testing.T) {
	data := buildStream(t, testStream{tileData: []byte{1, 2, 3, 4}})

	header := ParseBytes(data, true)
	require.NoError(t, header.Err)
	assert.Equal(t, []Marker{MarkerSOC, MarkerSIZ, MarkerCOD, MarkerQCD}, markers(header))
	assert.True(t, header.HeaderOnly)

	full := ParseBytes(data, false)
	require.NoError(t, full.Err)
	assert.Equal(t, []Marker{MarkerSOC, MarkerSIZ, MarkerCOD, MarkerQCD, MarkerSOT, MarkerSOD, MarkerEOC}, markers(full))
	assert.Equal(t, int64(len(data)-2), full.Find(MarkerEOC).Offset)

	// the header-only list is a prefix of the full list
	for i, s := range header.Segments {
		assert.Equal(t, s.Marker, full.Segments[i].Marker)
		assert.Equal(t, s.Offset, full.Segments[i].Offset)
	}
}

func TestParse_FullWalksEveryTilePart(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteSOC())
	require.NoError(t, w.WriteSIZ(BuildSIZ(8, 8, UniformComponents(3, 8, false), 4, 4)))
	require.NoError(t, w.WriteCOD(BuildDefaultCOD(1, 1, ProgressionLRCP, true)))
	require.NoError(t, w.WriteQCD(BuildDefaultQCD(1, 2)))
	for i := range 4 {
		require.NoError(t, w.WriteSOT(&SOTMarker{TileIndex: uint16(i), TilePartLen: 12 + 2 + 3, NumTileParts: 1}))
		require.NoError(t, w.WriteSOD())
		require.NoError(t, w.WriteBytes([]byte{byte(i), 0, 1}))
	}
	require.NoError(t, w.WriteEOC())
	require.NoError(t, w.Flush())
	data := buf.Bytes()

	header := ParseBytes(data, true)
	require.NoError(t, header.Err)
	assert.Equal(t, []Marker{MarkerSOC, MarkerSIZ, MarkerCOD, MarkerQCD}, markers(header))
	assert.Equal(t, 4, header.SIZ().NumTiles())

	full := ParseBytes(data, false)
	require.NoError(t, full.Err)
	assert.Equal(t, []Marker{
		MarkerSOC, MarkerSIZ, MarkerCOD, MarkerQCD,
		MarkerSOT, MarkerSOD, MarkerSOT, MarkerSOD, MarkerSOT, MarkerSOD, MarkerSOT, MarkerSOD,
		MarkerEOC,
	}, markers(full))
	sots := full.FindAll(MarkerSOT)
	require.Len(t, sots, 4)
	for i, s := range sots {
		assert.Equal(t, uint16(i), s.Body.(*SOTMarker).TileIndex)
		assert.Empty(t, s.Errors)
	}
	assert.Equal(t, header.HeaderLength, sots[0].Offset)
	assert.Equal(t, int64(len(data)-2), full.Find(MarkerEOC).Offset)
}

func TestParse_SIZFields(t *testing.T) {
	cs := ParseBytes(buildStream(t, testStream{}), true)
	require.NoError(t, cs.Err)

	siz := cs.SIZ()
	require.NotNil(t, siz)
	assert.Equal(t, uint32(8), siz.XSiz)
	assert.Equal(t, uint32(8), siz.YSiz)
	assert.Equal(t, 3, siz.Csiz())
	assert.Equal(t, 1, siz.NumTiles())
	for _, c := range siz.Components {
		assert.Equal(t, ComponentInfo{Precision: 8, XRsiz: 1, YRsiz: 1}, c)
	}
	seg := cs.Find(MarkerSIZ)
	assert.Equal(t, int64(2), seg.Offset)
	assert.Equal(t, 38+3*3+2, seg.Length)
	assert.Empty(t, seg.Errors)

	cod := cs.COD()
	require.NotNil(t, cod)
	assert.Equal(t, byte(1), cod.DecompLevels)
	assert.Equal(t, 64, cod.CodeBlockWidth())
	assert.Equal(t, TransformReversible53, cod.Transform)
	assert.Equal(t, []Precinct{{Width: DefaultPrecinct, Height: DefaultPrecinct}}, cod.PrecinctSizes)

	qcd, ok := cs.Find(MarkerQCD).Body.(*QCDMarker)
	require.True(t, ok)
	assert.Equal(t, byte(2), qcd.GuardBits)
	assert.Len(t, qcd.StepSizes, 4)
}

func TestParse_ComponentOverrideOutOfRange(t *testing.T) {
	qcc := &QCCMarker{Component: 5, Quantization: BuildDefaultQCD(1, 2).Quantization}
	cs := ParseBytes(buildStream(t, testStream{qcc: qcc}), false)

	require.NoError(t, cs.Err, "an out-of-range component must not stop the parse")
	seg := cs.Find(MarkerQCC)
	require.NotNil(t, seg)
	require.NotEmpty(t, seg.Errors)
	assert.True(t, errors.Is(seg.Errors[0], ErrComponentIndex))
	assert.NotNil(t, cs.Find(MarkerEOC))
	assert.Contains(t, seg.String(), "Error:  component index out of range")
}

func TestParse_QuantizationCounts(t *testing.T) {
	tests := []struct {
		name    string
		qcc     Quantization
		wantErr bool
	}{
		{
			name: "reversible matches levels",
			qcc:  Quantization{StepSizes: make([]StepSize, 4)},
		},
		{
			name:    "reversible short by one",
			qcc:     Quantization{StepSizes: make([]StepSize, 3)},
			wantErr: true,
		},
		{
			name: "scalar implicit has one step",
			qcc:  Quantization{Sqcd: 0x01, StepSizes: []StepSize{{Mantissa: 0x123, Exponent: 9}}},
		},
		{
			name: "scalar explicit matches levels",
			qcc:  Quantization{Sqcd: 0x02, StepSizes: make([]StepSize, 4)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := ParseBytes(buildStream(t, testStream{qcc: &QCCMarker{Component: 1, Quantization: tt.qcc}}), true)
			require.NoError(t, cs.Err)
			seg := cs.Find(MarkerQCC)
			require.NotNil(t, seg)
			if tt.wantErr {
				require.Len(t, seg.Errors, 1)
				assert.True(t, errors.Is(seg.Errors[0], jp2err.ErrValidation))
				return
			}
			assert.Empty(t, seg.Errors)
			qcc, ok := seg.Body.(*QCCMarker)
			require.True(t, ok)
			assert.Equal(t, uint16(1), qcc.Component)
			assert.Equal(t, tt.qcc.StepSizes, qcc.StepSizes)
		})
	}
}

func TestParse_UnrecognizedProgression(t *testing.T) {
	cs := ParseBytes(buildStream(t, testStream{prog: 9}), true)
	require.NoError(t, cs.Err)

	seg := cs.Find(MarkerCOD)
	require.Len(t, seg.Errors, 1)
	var warn *jp2err.UnrecognizedEnumWarning
	require.True(t, errors.As(seg.Errors[0], &warn))
	assert.Equal(t, int64(9), warn.Value)
	assert.Contains(t, seg.String(), "Progression order:  unrecognized (raw value 9)")
}

func TestParse_SOPAndEPH(t *testing.T) {
	tile := []byte{
		0xFF, 0x91, 0x00, 0x04, 0x00, 0x00, // SOP 0
		0x80, 0xFF, 0x92, // packet header + EPH
		0xAA, 0xBB,
		0xFF, 0x91, 0x00, 0x04, 0x00, 0x01, // SOP 1
		0x00, 0xFF, 0x92,
	}
	data := buildStream(t, testStream{scod: CodingStyleSOPMarker | CodingStyleEPHMarker, tileData: tile})

	full := ParseBytes(data, false)
	require.NoError(t, full.Err)
	sops := full.FindAll(MarkerSOP)
	require.Len(t, sops, 2)
	sod := full.Find(MarkerSOD)
	assert.Equal(t, sod.Offset+2, sops[0].Offset)
	assert.Equal(t, sod.Offset+2+11, sops[1].Offset)
	assert.Equal(t, 4, sops[1].Length)
	assert.Equal(t, uint16(1), sops[1].Body.(*SOPMarker).Nsop)
	assert.Len(t, full.FindAll(MarkerEPH), 2)
	assert.NotNil(t, full.Find(MarkerEOC))

	header := ParseBytes(data, true)
	assert.Empty(t, header.FindAll(MarkerSOP))
}

func TestParse_TilePartRunsToEnd(t *testing.T) {
	cs := ParseBytes(buildStream(t, testStream{tileData: []byte{9, 9, 9}, psotZero: true}), false)
	require.NoError(t, cs.Err)
	assert.NotNil(t, cs.Find(MarkerEOC))
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name     string
		data     func(t *testing.T) []byte
		sentinel error
		segments int
	}{
		{
			name:     "not a codestream",
			data:     func(t *testing.T) []byte { return []byte{0x00, 0x00, 0x00, 0x0C} },
			sentinel: ErrInvalidMarker,
			segments: 0,
		},
		{
			name:     "marker below ff00",
			data:     func(t *testing.T) []byte { return []byte{0xFF, 0x4F, 0x12, 0x34} },
			sentinel: ErrInvalidMarker,
			segments: 1,
		},
		{
			name:     "length below two",
			data:     func(t *testing.T) []byte { return []byte{0xFF, 0x4F, 0xFF, 0x64, 0x00, 0x01} },
			sentinel: ErrInvalidLength,
			segments: 1,
		},
		{
			name:     "segment overruns input",
			data:     func(t *testing.T) []byte { return []byte{0xFF, 0x4F, 0xFF, 0x64, 0x00, 0x20, 0x00, 0x01} },
			sentinel: jp2err.ErrTruncated,
			segments: 2,
		},
		{
			name: "missing EOC",
			data: func(t *testing.T) []byte {
				return buildStream(t, testStream{tileData: []byte{1}, noEOC: true})
			},
			sentinel: jp2err.ErrTruncated,
			segments: 6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := ParseBytes(tt.data(t), false)
			require.Error(t, cs.Err)
			assert.True(t, errors.Is(cs.Err, tt.sentinel), cs.Err.Error())
			assert.Len(t, cs.Segments, tt.segments)
		})
	}
}

func TestParse_LatinComment(t *testing.T) {
	com := &COMMarker{Registration: 1, Data: []byte("caf\xe9")}
	cs := ParseBytes(buildStream(t, testStream{com: com}), true)
	require.NoError(t, cs.Err)

	seg := cs.Find(MarkerCOM)
	require.NotNil(t, seg)
	text, ok := seg.Body.(*COMMarker).Text()
	require.True(t, ok)
	assert.Equal(t, "café", text)
}

func TestCodestream_String(t *testing.T) {
	cs := ParseBytes(buildStream(t, testStream{}), true)
	out := cs.String()

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Codestream:", lines[0])
	assert.Equal(t, "    SOC marker segment @ (0, 0)", lines[1])
	assert.Equal(t, "    SIZ marker segment @ (2, 49)", lines[2])
	assert.Contains(t, out, "        Reference Grid Height, Width:  (8 x 8)")
	assert.Contains(t, out, "        Bitdepth:  (8, 8, 8)")
	assert.Contains(t, out, "            Progression order:  LRCP")
	assert.Contains(t, out, "            Wavelet transform:  5-3 reversible")
	assert.Contains(t, out, "        Quantization style:  no quantization, 2 guard bits")

	// rendering is a pure function of the parsed tree
	assert.Equal(t, out, cs.String())
}

func TestMarker_String(t *testing.T) {
	assert.Equal(t, "SOC", MarkerSOC.String())
	assert.Equal(t, "SOD", MarkerSOD.String())
	assert.Equal(t, "0xff50", MarkerCAP.String())
	assert.False(t, MarkerEPH.HasLength())
	assert.False(t, Marker(0xFF35).HasLength())
	assert.True(t, MarkerCOM.HasLength())
}

func TestProfileName(t *testing.T) {
	tests := []struct {
		rsiz uint16
		want string
		ok   bool
	}{
		{ProfileNone, "no profile", true},
		{ProfileCinema2K, "2K cinema", true},
		{ProfileBCSingle | 0x0003, "single tile broadcast", true},
		{ProfilePart2 | 0x0040, "at least 1 extension defined in 15444-2 (Part-2)", true},
		{0x0042, "66 (invalid)", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, ok := ProfileName(tt.rsiz)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
