package lampyrid

// A lightweight replacement for the colored-console output scheme the
// predecessor used.  One leveled logger for the whole package.

import (
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "lampyrid",
})

func LogInit(debug bool) {
	if debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}
