package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
)

// ConfigureLogging sets up the standard logrus logger for a long-running process.
// The level is read from the IMPORTER_LOG_LEVEL environment variable and defaults to info.
// Every logged line is also counted in prometheus by level.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(levelFromEnv())

	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		log.WithError(err).Warn("could not register prometheus logging hook")
		return
	}
	log.AddHook(hook)
}

// ConfigureCommandLineLogging sets up logging for short-lived commands whose output is read by a person.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&CommandLineFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(levelFromEnv())
}

func levelFromEnv() log.Level {
	value := strings.TrimSpace(os.Getenv("IMPORTER_LOG_LEVEL"))
	if value == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(value)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
