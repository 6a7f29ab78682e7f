// Package logger provides the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Fields is a type alias for log fields to make the API cleaner
type Fields = logrus.Fields

// LogFileName is the base name of the rotated log file written when a log dir is configured.
const LogFileName = "ofclient.log"

var (
	logger   *logrus.Logger
	loggerMu sync.Mutex
)

// Options configures the logger.
type Options struct {
	Level   string // panic, fatal, error, warn, info, debug, trace
	NoColor bool
	Dir     string // when set, logs are also written to a daily rotated file there
	Output  io.Writer
}

// InitLogger initializes the global logger.
func InitLogger(opts Options) error {
	l := logrus.New()
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel // fallback to info level
	}
	l.SetLevel(level)

	formatter := &logrus.TextFormatter{
		ForceColors:      !opts.NoColor,
		DisableColors:    opts.NoColor,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05.000",
		QuoteEmptyFields: true,
	}
	l.SetFormatter(formatter)

	if opts.Dir != "" {
		if err := addFileHook(l, opts.Dir); err != nil {
			return err
		}
	}

	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return nil
}

func addFileHook(l *logrus.Logger, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	logFile := filepath.Join(dir, LogFileName)
	writer, err := rotatelogs.New(
		logFile+".%Y%m%d",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return err
	}

	l.AddHook(lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}))
	return nil
}

// GetLogger returns the configured logger instance
func GetLogger() *logrus.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...Fields) {
	GetLogger().WithFields(mergeFields(fields...)).Info(msg)
}

// Debug logs a debug message (only shown when debug level is enabled)
func Debug(msg string, fields ...Fields) {
	GetLogger().WithFields(mergeFields(fields...)).Debug(msg)
}

// Warn logs a warning message
func Warn(msg string, fields ...Fields) {
	GetLogger().WithFields(mergeFields(fields...)).Warn(msg)
}

// Error logs an error message
func Error(msg string, fields ...Fields) {
	GetLogger().WithFields(mergeFields(fields...)).Error(msg)
}

// Success logs a success message as info with success indicator
func Success(msg string, fields ...Fields) {
	merged := mergeFields(fields...)
	merged["status"] = "success"
	GetLogger().WithFields(merged).Info(msg)
}

// mergeFields merges multiple Fields into one
func mergeFields(fields ...Fields) Fields {
	result := make(Fields)
	for _, field := range fields {
		for k, v := range field {
			result[k] = v
		}
	}
	return result
}
