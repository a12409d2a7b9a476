// Package rlog is this repository's logging setup: one logrus root
// logger formatted with logrus-prefixed-formatter, and a
// per-subsystem child entry for each of usb, mtp, data, supervisor
// and progress, mirroring the teacher's log.Children/ChildLogger
// split but returning plain *logrus.Entry values instead of a
// bespoke wrapper type, since logrus.Entry already has the leveled
// methods callers need.
package rlog

import (
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Root is the process-wide logger every child entry derives from.
var Root = &logrus.Logger{
	Out:   os.Stdout,
	Level: logrus.InfoLevel,
	Formatter: &prefixed.TextFormatter{
		DisableColors: func() bool {
			term, ok := os.LookupEnv("TERM")
			return term == "" || !ok
		}(),
		ForceFormatting: true,
		TimestampFormat: "2006-01-02 15:04:05",
	},
}

// SetDebug raises or lowers Root's level. Individual subsystems still
// get their own debug gate via For's debug argument, matching the
// teacher's three independent trace switches (MTPDebug/USBDebug/DataDebug)
// rather than one global verbosity knob.
func SetDebug(on bool) {
	if on {
		Root.SetLevel(logrus.DebugLevel)
	} else {
		Root.SetLevel(logrus.InfoLevel)
	}
}

// For returns a child entry tagged with prefix. debug forces this
// particular subsystem down to debug level even when Root's level is
// higher, so a single "-mtp-debug" flag doesn't also turn on noisy usb
// tracing.
func For(prefix string, debug bool) *logrus.Entry {
	e := Root.WithField("prefix", prefix)
	if debug {
		cp := *Root
		cp.SetLevel(logrus.DebugLevel)
		e = cp.WithField("prefix", prefix)
	}
	return e
}
