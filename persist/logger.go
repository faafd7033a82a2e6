package persist

import (
	"log"
	"os"
	"time"

	"go.uber.org/zap"
)

// A Logger wraps the standard library's *log.Logger, writing timestamped
// lines to a file, and additionally feeds the same events to a structured
// zap.Logger so that operators running a cluster can ship logs to whatever
// aggregator they use. Taxonomy severities map directly: SUCCESS and
// NO_ENTRY log at INFO, everything else at ERROR.
type Logger struct {
	*log.Logger
	file    *os.File
	structured *zap.SugaredLogger
}

// NewLogger returns a Logger that writes to filename (both the line logger
// and the structured logger append to that file; nothing goes to stderr),
// printing a STARTUP banner immediately and a SHUTDOWN banner on Close.
func NewLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{filename}
	zlog, err := zcfg.Build()
	if err != nil {
		// Structured logging is a convenience layer over the line logger;
		// its failure (e.g. an unwritable path under a test harness) must
		// not prevent the plain-text logger from working.
		zlog = zap.NewNop()
	}

	l := &Logger{
		Logger:     log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		file:       file,
		structured: zlog.Sugar(),
	}
	l.Println("STARTUP: log file opened at", time.Now().Format(time.RFC3339))
	return l, nil
}

// Info logs an advisory, SUCCESS/NO_ENTRY-class message.
func (l *Logger) Info(args ...interface{}) {
	l.Println(append([]interface{}{"INFO:"}, args...)...)
	l.structured.Info(args...)
}

// Error logs a non-SUCCESS, non-NO_ENTRY taxonomy result.
func (l *Logger) Error(args ...interface{}) {
	l.Println(append([]interface{}{"ERROR:"}, args...)...)
	l.structured.Error(args...)
}

// Critical logs a developer-error-class message with a CRITICAL: prefix (at
// ERROR severity in the structured log). Unlike build.Critical, which it is
// named after, it never panics.
func (l *Logger) Critical(args ...interface{}) {
	l.Println(append([]interface{}{"CRITICAL:"}, args...)...)
	l.structured.Error(args...)
}

// Close prints a SHUTDOWN banner and closes the underlying file.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: logger closing")
	_ = l.structured.Sync()
	return l.file.Close()
}
