package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/dexvm/dexcache"
	"github.com/chazu/dexvm/manifest"
	"github.com/chazu/dexvm/vm"
)

var log = commonlog.GetLogger("dexvm")

// options holds the persistent flags and the configuration they
// resolve to.
type options struct {
	verbose int
	logFile string
	config  string
	noCache bool

	manifest *manifest.Manifest
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "dexvm",
		Short:        "Verify, inspect and run dex containers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.CountVarP(&opts.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&opts.logFile, "log", "", "log to this file instead of stderr")
	flags.StringVarP(&opts.config, "config", "c", "", "path to dexvm.toml (default: search upward from the working directory)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "bypass the verification cache")

	root.AddCommand(
		newVerifyCommand(opts),
		newDumpCommand(opts),
		newRunCommand(opts),
		newServeCommand(opts),
		newConvertCommand(opts),
	)
	return root
}

// setup loads the manifest and configures logging. Flags given on the
// command line win over the manifest's [log] section.
func (o *options) setup(cmd *cobra.Command) error {
	var err error
	switch {
	case o.config != "":
		o.manifest, err = manifest.Load(o.config)
	default:
		var wd string
		if wd, err = os.Getwd(); err == nil {
			o.manifest, err = manifest.FindAndLoad(wd)
		}
	}
	if err != nil {
		return err
	}
	if o.manifest == nil {
		o.manifest = manifest.Default()
	}

	verbosity := o.manifest.Log.Verbosity
	if cmd.Flags().Changed("verbose") {
		verbosity = o.verbose
	}
	path := o.manifest.LogFile()
	if o.logFile != "" {
		path = o.logFile
	}
	if path == "" {
		commonlog.Configure(verbosity, nil)
	} else {
		commonlog.Configure(verbosity, &path)
	}
	if o.manifest.Dir != "" {
		log.Debugf("using %s", filepath.Join(o.manifest.Dir, manifest.FileName))
	}
	return nil
}

// openCache opens the verification cache, or returns nil when it is
// disabled.
func (o *options) openCache() (*dexcache.Cache, error) {
	if o.noCache || !o.manifest.Cache.Enabled {
		return nil, nil
	}
	path := o.manifest.CachePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return dexcache.Open(path)
}

// newVM builds a runtime from the manifest and loads files into it. The
// returned func shuts the runtime down and closes the cache.
func (o *options) newVM(cmd *cobra.Command, files []string) (*vm.VM, func(), error) {
	cache, err := o.openCache()
	if err != nil {
		return nil, nil, err
	}
	cfg := vm.Config{
		HeapLimit:     int64(o.manifest.VM.HeapLimit),
		MaxFrameDepth: o.manifest.VM.MaxFrameDepth,
		GCInterval:    o.manifest.VM.GCInterval,
		GCThreshold:   o.manifest.VM.GCThreshold,
		Stdout:        cmd.OutOrStdout(),
		Cache:         cache,
	}
	closeCache := func() {
		if cache != nil {
			if err := cache.Close(); err != nil {
				log.Warningf("closing cache: %s", err)
			}
		}
	}

	v, err := vm.New(cfg)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	cleanup := func() {
		v.Shutdown()
		closeCache()
	}
	for _, path := range files {
		if _, err := v.LoadFile(path); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return v, cleanup, nil
}
