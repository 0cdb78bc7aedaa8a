package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jpfielding/jp2k.go/pkg/box"
	"github.com/jpfielding/jp2k.go/pkg/jp2k"
	"github.com/spf13/cobra"
)

// NewAppendCmd adds an xml or uuid box to the end of a JP2 file
func NewAppendCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append FILE",
		Short: "append an XML or UUID box to a JP2 file",
		Long:  "Appends an XML box (--xml) or a UUID box (--uuid with --data) after the last byte of a JP2 file without rewriting the rest of it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			xmlPath, _ := cmd.Flags().GetString("xml")
			id, _ := cmd.Flags().GetString("uuid")
			dataPath, _ := cmd.Flags().GetString("data")

			var b *box.Box
			switch {
			case xmlPath != "" && id != "":
				return fmt.Errorf("--xml and --uuid are exclusive")
			case xmlPath != "":
				text, err := os.ReadFile(xmlPath)
				if err != nil {
					return err
				}
				x := box.ParseXML(text)
				if x.Err != nil {
					return fmt.Errorf("%s is not well formed XML: %w", xmlPath, x.Err)
				}
				b = box.New(box.TypeXML, x)
			case id != "":
				parsed, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid --uuid: %w", err)
				}
				if dataPath == "" {
					return fmt.Errorf("--uuid needs --data")
				}
				data, err := os.ReadFile(dataPath)
				if err != nil {
					return err
				}
				b = box.NewUUID(parsed, data)
			default:
				return fmt.Errorf("one of --xml or --uuid is required")
			}

			n, err := jp2k.AppendFile(args[0], b)
			if err != nil {
				return fmt.Errorf("failed to append to %s: %w", args[0], err)
			}
			slog.InfoContext(ctx, "appended", "file", args[0], "type", b.Type.String(), "bytes", n)
			return nil
		},
	}
	pf := cmd.Flags()
	pf.String("xml", "", "XML document to append")
	pf.String("uuid", "", "UUID of the box to append")
	pf.String("data", "", "payload of the UUID box")
	return cmd
}
