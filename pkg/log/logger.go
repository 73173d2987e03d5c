package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents logging verbosity
type Level int

const (
	ErrorLevel Level = iota
	InfoLevel
	DebugLevel
	TraceLevel
)

var levelNames = map[Level]string{
	ErrorLevel: "ERROR",
	InfoLevel:  "INFO",
	DebugLevel: "DEBUG",
	TraceLevel: "TRACE",
}

var (
	errorTag    = color.New(color.FgRed, color.Bold).SprintFunc()
	warningTag  = color.New(color.FgYellow).SprintFunc()
	successTag  = color.New(color.FgGreen).SprintFunc()
	progressTag = color.New(color.FgCyan).SprintFunc()
	debugTag    = color.New(color.FgMagenta).SprintFunc()
)

// Logger is a leveled logger that writes to the terminal and, optionally,
// to a per-run log file. A nil *Logger discards everything, so library
// code can log unconditionally.
type Logger struct {
	level      Level
	logFile    *os.File
	mu         sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	fileLogger *log.Logger
}

// New creates a logger. When logDir is non-empty a timestamped log file is
// created inside it.
func New(level Level, logDir string) (*Logger, error) {
	l := &Logger{
		level:  level,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		logPath := filepath.Join(logDir, fmt.Sprintf("covspelunk-%s.log", time.Now().Format("20060102-150405")))
		f, err := os.Create(logPath)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.logFile = f
		l.fileLogger = log.New(f, "", log.LstdFlags)
	}

	return l, nil
}

// NewWriter creates a file-less logger writing both streams to w.
func NewWriter(level Level, w io.Writer) *Logger {
	return &Logger{level: level, stdout: w, stderr: w}
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil || level > l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.fileLogger != nil {
		l.fileLogger.Printf("[%s] %s", levelNames[level], msg)
	}

	switch level {
	case ErrorLevel:
		fmt.Fprintf(l.stderr, "%s %s\n", errorTag("error:"), msg)
	case InfoLevel:
		fmt.Fprintf(l.stdout, "%s\n", msg)
	default:
		fmt.Fprintf(l.stdout, "%s %s\n", debugTag(levelNames[level]), msg)
	}
}

// always writes a message regardless of verbosity.
func (l *Logger) always(tag, fileTag, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.fileLogger != nil {
		l.fileLogger.Printf("[%s] %s", fileTag, msg)
	}
	fmt.Fprintf(l.stdout, "%s %s\n", tag, msg)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ErrorLevel, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(TraceLevel, format, args...)
}

// Progress logs a progress message (always shown)
func (l *Logger) Progress(format string, args ...interface{}) {
	l.always(progressTag("..."), "PROGRESS", format, args...)
}

// Success logs a success message (always shown)
func (l *Logger) Success(format string, args ...interface{}) {
	l.always(successTag("ok"), "SUCCESS", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.always(warningTag("warning:"), "WARNING", format, args...)
}

// ParseLevel parses a string into a log level
func ParseLevel(s string) (Level, error) {
	switch s {
	case "error":
		return ErrorLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "trace":
		return TraceLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s (valid: error, info, debug, trace)", s)
	}
}
