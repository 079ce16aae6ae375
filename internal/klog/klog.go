// Package klog is the kernel-wide logging facility. It stands in for the
// LOG_TRACE/DEBUG/INFO/WARN/ERROR macro family and the panic(msg) -> !
// fatal-halt convention.
package klog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetLevel(logrus.TraceLevel)
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLevel adjusts verbosity; cmd/kernel wires this to a CLI flag.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		std.Warnf("klog: unknown level %q, keeping %s", level, std.GetLevel())
		return
	}
	std.SetLevel(lvl)
}

func Trace(format string, args ...interface{}) { std.Tracef(format, args...) }
func Debug(format string, args ...interface{}) { std.Debugf(format, args...) }
func Info(format string, args ...interface{})  { std.Infof(format, args...) }
func Warn(format string, args ...interface{})  { std.Warnf(format, args...) }
func Error(format string, args ...interface{}) { std.Errorf(format, args...) }

// Panic logs msg at error level and halts the kernel the way an invariant
// violation halts the C original: there is no recovery path for a tier-3
// fault, so this never returns.
func Panic(msg string) {
	std.Error(msg)
	panic(msg)
}

// Panicf is Panic with printf-style formatting.
func Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	std.Error(msg)
	panic(msg)
}
