package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/dexvm/dex"
	"github.com/chazu/dexvm/dexcache"
)

func newVerifyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE...",
		Short: "Verify dex containers and report the first violation in each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := opts.openCache()
			if err != nil {
				return err
			}
			if cache != nil {
				defer cache.Close()
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				msg, ok := verifyOne(cache, path)
				if !ok {
					failed++
				}
				fmt.Fprintf(out, "%s: %s\n", path, msg)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(args))
			}
			return nil
		},
	}
}

// verifyOne verifies the container at path, consulting and updating
// cache when it is non-nil.
func verifyOne(cache *dexcache.Cache, path string) (string, bool) {
	data, err := dex.ReadFile(path)
	if err != nil {
		return err.Error(), false
	}
	digest := dexcache.Digest(data)
	if cache != nil {
		e, ok, err := cache.Lookup(digest)
		switch {
		case err != nil:
			log.Warningf("verification cache: %s", err)
		case ok && e.Verified:
			return fmt.Sprintf("ok, %d classes (cached)", e.Classes), true
		case ok:
			return fmt.Sprintf("FAILED: %s (cached)", e.Error), false
		}
	}

	f, verr := dex.Verify(data)
	entry := dexcache.Entry{Verified: verr == nil}
	if verr != nil {
		log.Errorf("%s: %s", path, verr)
		entry.Error = verr.Error()
	} else {
		entry.Classes = len(f.ClassDefs)
	}
	if cache != nil {
		if err := cache.Record(digest, entry); err != nil {
			log.Warningf("verification cache: %s", err)
		}
	}
	if verr != nil {
		return "FAILED: " + verr.Error(), false
	}
	return fmt.Sprintf("ok, %d classes", entry.Classes), true
}
