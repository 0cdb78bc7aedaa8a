package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpfielding/jp2k.go/pkg/jp2k"
	"github.com/jpfielding/jp2k.go/pkg/options"
	"github.com/jpfielding/jp2k.go/pkg/render"
	"github.com/spf13/cobra"
)

// NewDumpCmd prints the box tree and codestream of a file
func NewDumpCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "print the boxes and marker segments of a JPEG 2000 file",
		Long:  "Parses a JP2/JPX file or bare codestream and prints its box tree, codestream header and any anomalies found while reading it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			o := options.Get()
			if v, _ := flags.GetBool("short"); v {
				o.PrintShort = true
			}
			if v, _ := flags.GetBool("no-xml"); v {
				o.PrintXML = false
			}
			if v, _ := flags.GetBool("no-codestream"); v {
				o.PrintCodestream = false
			}
			if v, _ := flags.GetBool("full"); v {
				o.ParseFullCodestream = true
			}

			f, err := jp2k.OpenFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			slog.DebugContext(ctx, "opened", "file", args[0], "boxes", len(f.Boxes), "warnings", len(f.Warnings))

			switch format, _ := flags.GetString("format"); format {
			case "text":
				fmt.Fprintln(cmd.OutOrStdout(), render.File(f, o))
				return nil
			case "json":
				return render.JSON(cmd.OutOrStdout(), f, o)
			default:
				return fmt.Errorf("unknown format %q (text|json)", format)
			}
		},
	}
	pf := cmd.Flags()
	pf.BoolP("short", "s", false, "print box headers only")
	pf.Bool("no-xml", false, "omit XML box bodies")
	pf.Bool("no-codestream", false, "omit the codestream marker dump")
	pf.Bool("full", false, "parse every tile part, not just the main header")
	pf.StringP("format", "f", "text", "output format (text|json)")
	return cmd
}
