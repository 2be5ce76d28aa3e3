package logging

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// NullLogger discards everything. Useful for tests and for components constructed without a logger.
var NullLogger = &log.Logger{
	Out:       io.Discard,
	Formatter: new(log.TextFormatter),
	Hooks:     make(log.LevelHooks),
	Level:     log.PanicLevel,
}

// NullEntry returns an entry on NullLogger.
func NullEntry() *log.Entry {
	return log.NewEntry(NullLogger)
}
