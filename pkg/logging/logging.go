// Package logging configures the structured logger every core
// component (resolver, validator, executor, journal, transaction
// manager) logs through, per the engine's ambient logging stack.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jopamo/tfs/pkg/errkind"
)

// verbosityLevels maps a repeated -v flag count to a zerolog level;
// anything past the last entry clamps to trace rather than growing
// unbounded.
var verbosityLevels = []zerolog.Level{
	zerolog.WarnLevel,
	zerolog.InfoLevel,
	zerolog.DebugLevel,
	zerolog.TraceLevel,
}

// SetupLogger installs the global logger at the level verbosity
// selects, writing human-readable output to stderr and the same
// structured records to a log file under the XDG state directory. A
// log file that can't be opened is not fatal: the run continues on
// console output alone, since nothing in the engine depends on the
// log file existing (durability lives in pkg/journal, not here).
func SetupLogger(verbosity int) {
	level := verbosityLevels[len(verbosityLevels)-1]
	if verbosity < len(verbosityLevels) {
		level = verbosityLevels[verbosity]
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	writers := []io.Writer{console}

	logPath := getLogFilePath()
	logFile, fileErr := setupLogFile(logPath)
	if fileErr == nil {
		writers = append(writers, logFile)
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).With().Timestamp()
	if verbosity >= 2 {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", logPath).Msg("continuing without a log file")
	}
}

// GetLogger returns a logger tagged with the calling component's name,
// the shape every package under pkg/ requests its logger through.
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// getLogFilePath returns the path to the log file under the XDG state
// directory, falling back to a relative path if XDG can't resolve one.
func getLogFilePath() string {
	path, err := xdg.StateFile("tfs/tfs.log")
	if err != nil {
		return "tfs.log"
	}
	return path
}

// setupLogFile opens logPath for appending, creating its parent
// directory first if necessary.
func setupLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, errkind.Wrap(err, errkind.IoError, "cannot create log directory").WithDetail("path", logPath)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IoError, "cannot open log file").WithDetail("path", logPath)
	}
	return f, nil
}

// LogOperationStart logs one operation's start and returns a function
// that logs its completion. op_id, op_kind and phase are attached as
// structured fields rather than folded into the message text, so a
// log aggregator can filter or join on them the same way it would on
// the journal's own record fields.
func LogOperationStart(logger zerolog.Logger, opID int, opKind string) func() {
	start := time.Now()
	logger.Debug().
		Int("op_id", opID).
		Str("op_kind", opKind).
		Str("phase", "start").
		Msg("operation started")

	return func() {
		logger.Debug().
			Int("op_id", opID).
			Str("op_kind", opKind).
			Str("phase", "complete").
			Dur("duration", time.Since(start)).
			Msg("operation completed")
	}
}
