// Copyright (C) 2025  aattww
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

// SimpleLogger is a level-filtered io.Writer suitable for
// Engine.SetLogger. Messages below the configured level are dropped.
type SimpleLogger struct {
	mu     sync.Mutex
	level  LogLevel
	output io.Writer
	prefix string
}

// NewSimpleLogger creates a logger writing to output (os.Stdout when
// nil) at the given level, tagging every line with prefix.
func NewSimpleLogger(output io.Writer, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{
		level:  level,
		output: output,
		prefix: prefix,
	}
}

// SetLevel changes the logging level.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Write implements io.Writer. The message level is inferred from an
// optional "[LEVEL]" or "LEVEL:" prefix and defaults to info.
func (l *SimpleLogger) Write(p []byte) (int, error) {
	message := string(p)
	level := messageLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || l.level == LevelNone {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n",
		time.Now().Format(time.RFC3339), levelNames[level], l.prefix,
		strings.TrimSpace(message))
	return l.output.Write([]byte(line))
}

func messageLevel(message string) LogLevel {
	upper := strings.ToUpper(message)
	switch {
	case strings.HasPrefix(upper, "[DEBUG]") || strings.HasPrefix(upper, "DEBUG:"):
		return LevelDebug
	case strings.HasPrefix(upper, "[WARNING]") || strings.HasPrefix(upper, "WARN:"):
		return LevelWarning
	case strings.HasPrefix(upper, "[ERROR]") || strings.HasPrefix(upper, "ERROR:"):
		return LevelError
	default:
		return LevelInfo
	}
}
