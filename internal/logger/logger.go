package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. It is usable before Init with the
// default text output at info level.
var Logger = newLogger()

type Config struct {
	Level string
	File  string
}

// Formatter writes one line per entry: time, level, component and message
// followed by the remaining fields in key order.
type Formatter struct {
	TimestampFormat string
}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format(f.TimestampFormat)

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s]", ts, level)
	if c, ok := entry.Data["component"]; ok {
		fmt.Fprintf(&b, " (%v)", c)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "component" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&Formatter{TimestampFormat: "2006-01-02 15:04:05.000"})
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Init applies the level and, when a file is configured, tees output into
// it.
func Init(cfg Config) error {
	Logger.SetLevel(parseLevel(cfg.Level))
	if cfg.File == "" {
		Logger.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// WithComponent returns an entry tagged with the subsystem name.
func WithComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}
