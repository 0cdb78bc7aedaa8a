package jp2k

import (
	"context"
	"fmt"
	"image"
	"io"
	"sort"
	"sync"

	"github.com/jpfielding/jp2k.go/pkg/codestream"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// Codec is a pixel coding engine. This package never interprets pixels; it
// locates the codestream and passes the request through.
type Codec interface {
	// Name returns the codec identifier (e.g., "openjpeg")
	Name() string
	// Decode decompresses the codestream found at rng in r
	Decode(ctx context.Context, r io.ReaderAt, rng ByteRange, req DecodeRequest) (image.Image, error)
	// Encode compresses img into a bare codestream
	Encode(ctx context.Context, w io.Writer, img image.Image, params CodingParams) error
}

// DecodeRequest carries the decode options handed to a Codec unchanged
type DecodeRequest struct {
	Components []int           // nil decodes every component
	Reduce     int             // resolution levels to discard, -1 for the smallest
	Layer      int             // quality layer, 0 for all
	Area       image.Rectangle // zero decodes the whole image
	Tile       int             // -1 decodes every tile
	Threads    int             // 0 uses options NumThreads
}

// CodingParams carries encode options handed to a Codec unchanged
type CodingParams struct {
	Layers       int
	Ratios       []float64 // compression ratio per layer
	PSNR         []float64 // quality per layer in dB, exclusive with Ratios
	TileWidth    int
	TileHeight   int
	Levels       int // decomposition levels
	Progression  codestream.ProgressionOrder
	Irreversible bool
	MCT          bool
	SOP, EPH     bool
	Threads      int
}

var (
	codecsMu     sync.RWMutex
	codecsByName = map[string]Codec{}
)

// RegisterCodec makes a codec available to CodecByName
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecsByName[c.Name()] = c
}

// CodecByName returns a codec by name, or nil if not found
func CodecByName(name string) Codec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	return codecsByName[name]
}

// Codecs returns the registered codec names in order
func Codecs() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	names := make([]string, 0, len(codecsByName))
	for n := range codecsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decode hands the codestream range to c
func (f *File) Decode(ctx context.Context, c Codec, req DecodeRequest) (image.Image, error) {
	rng, err := f.CodestreamRange()
	if err != nil {
		return nil, err
	}
	if req.Threads <= 0 {
		req.Threads = options.Get().NumThreads
	}
	img, err := c.Decode(ctx, f.src, rng, req)
	if err != nil {
		return nil, fmt.Errorf("%s decode: %w", c.Name(), err)
	}
	return img, nil
}

// CodingParamsFromCodestream lifts the parameters that re-encoding with the
// same structure would need from a parsed main header
func CodingParamsFromCodestream(cs *codestream.Codestream) (CodingParams, error) {
	siz, cod := cs.SIZ(), cs.COD()
	if siz == nil || cod == nil {
		return CodingParams{}, fmt.Errorf("main header lacks SIZ or COD")
	}
	p := CodingParams{
		Layers:       int(cod.NumLayers),
		Levels:       int(cod.DecompLevels),
		Progression:  cod.Progression,
		Irreversible: cod.Transform == codestream.TransformIrreversible97,
		MCT:          cod.MCT != 0,
		SOP:          cod.SOP(),
		EPH:          cod.EPH(),
		Threads:      options.Get().NumThreads,
	}
	// a single tile covering the image is the untiled default
	if siz.NumTiles() > 1 {
		p.TileWidth, p.TileHeight = int(siz.XTsiz), int(siz.YTsiz)
	}
	return p, nil
}
