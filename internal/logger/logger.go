// Package logger wraps the standard log package with level filtering.
package logger

import (
	"log"
	"strings"
	"sync/atomic"
)

// Level is a logging severity. Smaller values are more verbose.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// SetLevel sets the global level from its name (DEBUG, INFO, WARN, ERROR).
// Unknown names fall back to INFO.
func SetLevel(name string) {
	current.Store(int32(ParseLevel(name)))
}

// ParseLevel maps a level name to a Level, case-insensitively.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Enabled reports whether messages at l are written.
func Enabled(l Level) bool {
	return Level(current.Load()) <= l
}

func Debugf(format string, v ...interface{}) {
	if Enabled(LevelDebug) {
		log.Printf("DEBUG: "+format, v...)
	}
}

func Infof(format string, v ...interface{}) {
	if Enabled(LevelInfo) {
		log.Printf("INFO: "+format, v...)
	}
}

func Warnf(format string, v ...interface{}) {
	if Enabled(LevelWarn) {
		log.Printf("WARN: "+format, v...)
	}
}

func Errorf(format string, v ...interface{}) {
	if Enabled(LevelError) {
		log.Printf("ERROR: "+format, v...)
	}
}

// Fatalf logs and terminates the process.
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("FATAL: "+format, v...)
}
