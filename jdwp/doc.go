// Package jdwp is the debugger bridge of dexvm.
//
// A Bridge exposes the VM to a remote debugger through opaque numeric ids
// issued by a Registry, and receives interpreter events through the
// vm.DebugHooks interface. A Server accepts one debugger connection at a
// time and speaks the JDWP wire protocol to it, including the DDM chunk
// side channel used for monitoring.
package jdwp

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("dexvm.jdwp")
