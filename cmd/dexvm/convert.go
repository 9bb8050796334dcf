package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/dexvm/dex"
)

func newConvertCommand(opts *options) *cobra.Command {
	var (
		bigEndian bool
		output    string
	)
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Rewrite a container in the requested byte order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := dex.ReadFile(args[0])
			if err != nil {
				return err
			}
			var order binary.ByteOrder = binary.LittleEndian
			if bigEndian {
				order = binary.BigEndian
			}
			out, err := dex.ToByteOrder(data, order)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0644); err != nil {
				return err
			}
			log.Infof("wrote %s (%s)", output, order)
			return nil
		},
	}
	cmd.Flags().BoolVar(&bigEndian, "big-endian", false, "write big-endian instead of little-endian")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
