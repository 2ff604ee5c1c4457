package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/TheMichaelB/streamfs/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides structured logging.
type Logger struct {
	mu       *sync.Mutex
	level    LogLevel
	format   string
	output   io.Writer
	color    bool
	fields   map[string]interface{}
	hostname string
}

// NewLogger creates a logger from config.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	var output io.Writer = os.Stderr
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
	}

	hostname, _ := os.Hostname()

	return &Logger{
		mu:       &sync.Mutex{},
		level:    ParseLevel(cfg.Level),
		format:   cfg.Format,
		output:   output,
		color:    cfg.Color && isTerminal(output),
		fields:   make(map[string]interface{}),
		hostname: hostname,
	}, nil
}

// NewTestLogger creates a logger for testing.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		level:    level,
		format:   format,
		output:   output,
		fields:   make(map[string]interface{}),
		hostname: "test-host",
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewTestLogger(ErrorLevel+1, "text", io.Discard)
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	clone := *l
	clone.fields = newFields
	if clone.mu == nil {
		clone.mu = &sync.Mutex{}
	}
	return &clone
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.log(DebugLevel, msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.log(InfoLevel, msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.log(WarnLevel, msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.log(ErrorLevel, msg)
}

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level || l.output == nil {
		return
	}

	entry := l.buildEntry(level, msg)

	if l.mu != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
	}

	if l.format == "json" {
		l.writeJSON(entry)
	} else {
		l.writeText(entry)
	}
}

func (l *Logger) buildEntry(level LogLevel, msg string) map[string]interface{} {
	_, file, line, _ := runtime.Caller(3)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	entry := map[string]interface{}{
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
		"level":    levelString(level),
		"msg":      msg,
		"hostname": l.hostname,
		"caller":   fmt.Sprintf("%s:%d", file, line),
	}

	for k, v := range l.fields {
		entry[k] = v
	}

	return entry
}

func (l *Logger) writeJSON(entry map[string]interface{}) {
	for k, v := range entry {
		switch v.(type) {
		case string, bool, int, int32, int64, uint32, uint64, float64, nil:
		default:
			entry[k] = fmt.Sprint(v)
		}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = l.output.Write(append(data, '\n'))
}

var levelColors = map[string]*color.Color{
	"DEBUG": color.New(color.FgCyan),
	"INFO":  color.New(color.FgGreen),
	"WARN":  color.New(color.FgYellow),
	"ERROR": color.New(color.FgRed),
}

// writeText outputs TIME [LEVEL] Message key=value key=value.
func (l *Logger) writeText(entry map[string]interface{}) {
	levelStr := strings.ToUpper(entry["level"].(string))
	tag := "[" + levelStr + "]"
	if c, ok := levelColors[levelStr]; ok && l.color {
		tag = c.Sprint(tag)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", entry["time"], tag, entry["msg"])

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "time", "level", "msg", "hostname", "caller":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry[k])
	}
	sb.WriteByte('\n')

	_, _ = io.WriteString(l.output, sb.String())
}

// ParseLevel converts a config level name.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func levelString(l LogLevel) string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
