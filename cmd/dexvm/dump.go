package main

import (
	"github.com/spf13/cobra"

	"github.com/chazu/dexvm/dex"
)

func newDumpCommand(opts *options) *cobra.Command {
	var dumpOpts dex.DumpOptions
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print a listing of a dex container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dex.OpenFile(args[0])
			if err != nil {
				return err
			}
			return dex.Dump(cmd.OutOrStdout(), f, dumpOpts)
		},
	}
	cmd.Flags().BoolVar(&dumpOpts.Header, "header", true, "print the header")
	cmd.Flags().BoolVarP(&dumpOpts.Disassemble, "disassemble", "d", false, "disassemble method bodies")
	cmd.Flags().StringVar(&dumpOpts.Class, "class", "", "only print this class descriptor")
	return cmd
}
