package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log = zerolog.New(io.Discard)
)

// Logging configures the package logger from the environment and attaches it
// to ctx.
//
//	KNOB_LOG_DIR     directory for knob.log, defaults to the user cache dir
//	KNOB_LOG_LEVEL   zerolog level name, defaults to info
//	KNOB_LOG_STDERR  log to stderr instead of the file
func Logging(ctx context.Context) (context.Context, func(), error) {
	cleanup := func() {}
	logDir := os.Getenv("KNOB_LOG_DIR")
	if logDir == "" {
		if cacheDir, _ := os.UserCacheDir(); cacheDir != "" {
			logDir = filepath.Join(cacheDir, "knob")
			if err := os.Mkdir(logDir, os.ModeDir|0700); err != nil {
				if !os.IsExist(err) {
					logDir = ""
				}
			}
		}
	}

	var output io.Writer = io.Discard
	if logDir != "" {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "knob.log"),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		output = lj
		cleanup = func() {
			lj.Close()
		}
	}

	if os.Getenv("KNOB_LOG_STDERR") != "" {
		output = stderr()
	}

	level, err := Level(os.Getenv("KNOB_LOG_LEVEL"))
	if err != nil {
		return ctx, cleanup, err
	}

	log = New(output, level)
	ctx = log.WithContext(ctx)
	return ctx, cleanup, nil
}

// Level parses a level name. The empty string is info.
func Level(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unable to parse log level from KNOB_LOG_LEVEL: %s", err.Error())
	}
	return level, nil
}

// New builds a timestamped logger. Debug loggers also record the caller.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	logContext := zerolog.New(w).
		Level(level).
		With().
		Timestamp()
	if level == zerolog.DebugLevel || level == zerolog.TraceLevel {
		logContext = logContext.
			Stack().
			Caller()
	}
	return logContext.Logger()
}

func stderr() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return os.Stderr
}

func Logger() *zerolog.Logger {
	return &log
}
