package box

import (
	"fmt"
	"strings"

	"github.com/jpfielding/jp2k.go/pkg/options"
)

const indent = "    "

// Title returns the header line of a box rendering
func Title(b *Box) string {
	length := b.Length
	if length == 0 {
		length, _ = Size(b)
	}
	return fmt.Sprintf("%s Box (%s) @ (%d, %d)", b.Name(), b.Type, b.Offset, length)
}

// Format renders b and its descendants. Field lines and children are
// indented one level below the title. Short mode keeps only the titles.
func Format(b *Box, o options.Options) string {
	var sb strings.Builder
	format(&sb, b, o, "")
	return strings.TrimSuffix(sb.String(), "\n")
}

func format(sb *strings.Builder, b *Box, o options.Options, prefix string) {
	sb.WriteString(prefix + Title(b) + "\n")
	inner := prefix + indent
	if !o.PrintShort {
		if b.Err != nil {
			sb.WriteString(inner + "Error:  " + b.Err.Error() + "\n")
		}
		for _, w := range b.Warnings {
			sb.WriteString(inner + "Warning:  " + w.Error() + "\n")
		}
		if b.Payload != nil {
			for _, line := range b.Payload.Describe(o) {
				sb.WriteString(inner + line + "\n")
			}
		}
	}
	for _, c := range b.Children {
		format(sb, c, o, inner)
	}
}
