package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-global logger, constructed once at startup and
// injected into the Inside/Outside runtimes.
var Log = logrus.New()

// InitLogging configures Log for the given verbosity.
// verbosity: 0=warn, 1=info, 2=debug, 3+=trace.
func InitLogging(verbosity int) {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})

	switch {
	case verbosity <= 0:
		Log.SetLevel(logrus.WarnLevel)
	case verbosity == 1:
		Log.SetLevel(logrus.InfoLevel)
	case verbosity == 2:
		Log.SetLevel(logrus.DebugLevel)
	default:
		Log.SetLevel(logrus.TraceLevel)
	}

	Log.Debugf("log level set to %s (verbosity=%d)", Log.GetLevel(), verbosity)
}
