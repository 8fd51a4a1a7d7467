// Package log provides a global logger with configurable logging level. Socket lifecycle events
// are logged at LevelInfo and every native call at LevelDebug.

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally, e.g. failed cleanup.
	LevelInfo                 // Logs connects, accepts and closes.
	LevelDebug                // Logs every native socket call.
)

// EnvLogLevel names the environment variable read by SetLevelFromEnv.
const EnvLogLevel = "BTSOCK_LOG_LEVEL"

var (
	globalLogLevel Level
	output         io.Writer = os.Stderr
	logMutex       sync.Mutex
)

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

var levelNames = map[string]Level{
	"none":    LevelNone,
	"error":   LevelError,
	"warning": LevelWarning,
	"warn":    LevelWarning,
	"info":    LevelInfo,
	"debug":   LevelDebug,
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log lines to w. A nil w restores stderr.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

// ParseLevel converts a level name (none, error, warning, info, debug) to a Level.
func ParseLevel(name string) (Level, error) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level, nil
	}
	return LevelNone, fmt.Errorf("unknown log level '%s'", name)
}

// SetLevelFromEnv applies $BTSOCK_LOG_LEVEL if it is set and valid. It returns true if the level
// changed.
func SetLevelFromEnv() bool {
	name, ok := os.LookupEnv(EnvLogLevel)
	if !ok {
		return false
	}
	level, err := ParseLevel(name)
	if err != nil {
		Warning("Ignoring %s: %s", EnvLogLevel, err)
		return false
	}
	SetLevel(level)
	return true
}

func (l Level) String() string {
	for name, level := range levelNames {
		if level == l && name != "warn" {
			return name
		}
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func log(level Level, format string, a ...interface{}) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if level <= globalLogLevel {
		msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
		msg += fmt.Sprintf(format, a...)
		fmt.Fprintln(output, msg)
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
