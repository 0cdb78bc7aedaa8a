// Package render turns parsed files into jp2dump style text or JSON.
// Rendering reads the tree as built; it never re-parses a box.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/codestream"
	"github.com/jpfielding/jp2k.go/pkg/jp2k"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

const indent = "    "

// Boxes renders each top level box and its descendants
func Boxes(boxes []*box.Box, o options.Options) string {
	parts := make([]string, len(boxes))
	for i, b := range boxes {
		parts[i] = box.Format(b, o)
	}
	return strings.Join(parts, "\n")
}

// Codestream renders the marker segments. Short mode keeps one line per segment.
func Codestream(cs *codestream.Codestream, o options.Options) string {
	if !o.PrintShort {
		return cs.String()
	}
	var sb strings.Builder
	sb.WriteString("Codestream:")
	for _, s := range cs.Segments {
		title, _, _ := strings.Cut(s.String(), "\n")
		sb.WriteString("\n" + indent + title)
	}
	return sb.String()
}

// File renders the boxes of a container, or the codestream of a bare one,
// followed by the warnings Open collected. When the codestream is rendered
// its checks against the image header are included.
func File(f *jp2k.File, o options.Options) string {
	var sb strings.Builder
	if f.IsCodestream() {
		cs, err := f.Codestream(!o.ParseFullCodestream)
		if err != nil {
			return "Error:  " + err.Error()
		}
		if o.PrintCodestream {
			sb.WriteString(Codestream(cs, o))
		} else {
			fmt.Fprintf(&sb, "Codestream @ (%d, %d)", cs.Offset, cs.Length)
		}
	} else {
		if o.PrintCodestream {
			// parsing through the file adds the codestream checks to its warnings
			_, _ = f.Codestream(!o.ParseFullCodestream)
		}
		sb.WriteString(Boxes(f.Boxes, o))
	}
	if !o.PrintShort && len(f.Warnings) > 0 {
		sb.WriteString("\nWarnings:")
		for _, w := range f.Warnings {
			sb.WriteString("\n" + indent + w.Error())
		}
	}
	return sb.String()
}

// document is the JSON form of a file
type document struct {
	Size       int64                  `json:"size"`
	Bare       bool                   `json:"bare_codestream"`
	Boxes      []*box.Box             `json:"boxes,omitempty"`
	Codestream *codestream.Codestream `json:"codestream,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// JSON writes f as indented JSON. The codestream is included when
// PrintCodestream is set, parsed to the depth ParseFullCodestream selects.
func JSON(w io.Writer, f *jp2k.File, o options.Options) error {
	doc := document{Size: f.Size(), Bare: f.IsCodestream(), Boxes: f.Boxes}
	if o.PrintCodestream {
		if cs, err := f.Codestream(!o.ParseFullCodestream); err == nil {
			doc.Codestream = cs
		}
	}
	for _, warn := range f.Warnings {
		doc.Warnings = append(doc.Warnings, warn.Error())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&doc)
}
