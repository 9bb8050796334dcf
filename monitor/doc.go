// Package monitor serves a read-mostly inspection API over a running VM:
// heap statistics, threads, loaded classes and forced collections. The
// procedures are Connect unary calls with JSON bodies, so they can be
// driven with curl as well as with Client.
package monitor

import (
	"errors"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("dexvm.monitor")

// ErrStopped is returned by calls made after the worker stopped.
var ErrStopped = errors.New("monitor worker stopped")
