package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
	"tally.dev/internal/config"
)

// Lumberjack implements log file rotation
var writer io.Writer = io.Discard

func init() {
	// If we fail to get a release channel, we are defaulting to
	// the stable channel anyways, so select that for logging too
	channel, _ := config.GetReleaseChannel()

	if dir, err := channel.GetPath(); err == nil {
		writer = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "logs.db"),
			MaxSize:    512, // Megabytes
			MaxBackups: 1,
		}
	} else {
		fmt.Fprintf(os.Stderr, "WARN: logging to file is disabled: %s\n", err)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:         os.Stderr,
		FormatLevel: formatLevel,
	})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// SetLevel changes the level for every logger, using zerolog's level names.
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zerolog.SetGlobalLevel(parsed)
	return nil
}

type Ctx map[string]any
type Logger struct {
	zero      zerolog.Logger
	namespace string
	prefix    string
}

func New(namespace string) Logger {
	return Logger{
		zero:      zerolog.New(writer).With().Timestamp().Str("ns", namespace).Logger(),
		namespace: namespace,
		prefix:    color(randColor(namespace), "["+namespace+"]") + " ",
	}
}
