package dex

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("dexvm.dex")
