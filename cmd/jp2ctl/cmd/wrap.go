package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpfielding/jp2k.go/pkg/jp2k"
	"github.com/spf13/cobra"
)

// NewWrapCmd writes the codestream of SRC into a fresh JP2 jacket at DST
func NewWrapCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wrap SRC DST",
		Short: "wrap a codestream in a default JP2 jacket",
		Long:  "Reads a bare codestream or a JP2 file and writes its codestream to DST behind a signature, file type and JP2 header derived from the SIZ segment.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toEnd, _ := cmd.Flags().GetBool("to-end")

			f, err := jp2k.OpenFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			jacket, err := f.DefaultJacket()
			if err != nil {
				return err
			}
			n, err := f.WrapFile(args[1], jacket, jp2k.WrapOptions{ToEnd: toEnd})
			if err != nil {
				return fmt.Errorf("failed to wrap %s: %w", args[0], err)
			}
			slog.InfoContext(ctx, "wrapped", "src", args[0], "dst", args[1], "bytes", n)
			return nil
		},
	}
	cmd.Flags().Bool("to-end", false, "write the codestream box with a length of 0")
	return cmd
}
