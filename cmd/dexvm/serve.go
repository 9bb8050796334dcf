package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/dexvm/jdwp"
	"github.com/chazu/dexvm/monitor"
)

const defaultDebuggerAddr = "127.0.0.1:8700"

// errMainFinished ends the group when --exit is given.
var errMainFinished = errors.New("main finished")

// exitError carries the status a debugger asked the process to exit with.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("debugger requested exit with status %d", e.code)
}

type serveOptions struct {
	mainClass string
	jdwpAddr  string
	monAddr   string
	suspend   bool
	exit      bool
}

func newServeCommand(opts *options) *cobra.Command {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve FILE... [-- ARGS...]",
		Short: "Run main with the debugger listener and the monitor API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := opts.manifest
			if !cmd.Flags().Changed("jdwp") && m.Debugger.Listen != "" {
				so.jdwpAddr = m.Debugger.Listen
			}
			if !cmd.Flags().Changed("monitor") {
				so.monAddr = m.Monitor.Listen
			}
			if !cmd.Flags().Changed("suspend") {
				so.suspend = m.Debugger.SuspendOnStart
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, opts, so, args)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&so.mainClass, "main", "m", "LMain;", "descriptor of the class whose main to run")
	flags.StringVar(&so.jdwpAddr, "jdwp", defaultDebuggerAddr, "debugger listen address")
	flags.StringVar(&so.monAddr, "monitor", "", "monitor API listen address (empty disables)")
	flags.BoolVar(&so.suspend, "suspend", false, "wait for a debugger before running main")
	flags.BoolVar(&so.exit, "exit", false, "stop serving once main returns")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, opts *options, so *serveOptions, args []string) error {
	files, progArgs := splitArgs(cmd, args)
	v, cleanup, err := opts.newVM(cmd, files)
	if err != nil {
		return err
	}
	defer cleanup()

	bridge, err := jdwp.NewBridge(v)
	if err != nil {
		return err
	}
	defer bridge.Close()
	defer bridge.PostVMDeath()

	debugger := jdwp.NewServer(bridge, jdwp.WithHeapReports(opts.manifest.VM.GCInterval))
	if err := debugger.Listen(so.jdwpAddr); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return debugger.Serve(ctx)
	})
	g.Go(func() error {
		select {
		case code := <-bridge.ExitRequests():
			return &exitError{code: code}
		case <-ctx.Done():
			return nil
		}
	})

	if so.monAddr != "" {
		worker := monitor.NewWorker(v)
		defer worker.Stop()
		srv := monitor.NewServer(worker)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, so.monAddr)
		})
	}

	g.Go(func() error {
		if so.suspend {
			log.Noticef("waiting for a debugger on %s", debugger.Addr())
			if err := waitForDebugger(ctx, bridge); err != nil {
				return nil
			}
		}
		// Interpreted code cannot be interrupted, so an interrupt abandons
		// main rather than waiting for it.
		done := make(chan error, 1)
		go func() { done <- describeThrow(v.Run(so.mainClass, progArgs)) }()
		select {
		case err := <-done:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			log.Warningf("%s still running at shutdown", so.mainClass)
			return nil
		}
		if so.exit {
			return errMainFinished
		}
		log.Noticef("%s finished; serving until interrupted", so.mainClass)
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errMainFinished) {
		return err
	}
	return nil
}

// waitForDebugger blocks until a debugger has attached and set its first
// event request.
func waitForDebugger(ctx context.Context, b *jdwp.Bridge) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !b.Active() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
