package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/dexvm/vm"
)

func newRunCommand(opts *options) *cobra.Command {
	var mainClass string
	cmd := &cobra.Command{
		Use:   "run FILE... [-- ARGS...]",
		Short: "Run the static main method of a class",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, progArgs := splitArgs(cmd, args)
			v, cleanup, err := opts.newVM(cmd, files)
			if err != nil {
				return err
			}
			defer cleanup()
			return describeThrow(v.Run(mainClass, progArgs))
		},
	}
	cmd.Flags().StringVarP(&mainClass, "main", "m", "LMain;", "descriptor of the class whose main to run")
	return cmd
}

// splitArgs separates container paths from the arguments after "--".
func splitArgs(cmd *cobra.Command, args []string) (files, rest []string) {
	if n := cmd.ArgsLenAtDash(); n >= 0 {
		return args[:n], args[n:]
	}
	return args, nil
}

// describeThrow turns an uncaught exception into a readable error.
func describeThrow(err error) error {
	if _, ok := vm.AsThrow(err); ok {
		return fmt.Errorf("uncaught %w", err)
	}
	return err
}
