// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Logger struct {
	prefix string
	logger *log.Logger
}

var (
	baseMu       sync.RWMutex
	baseLogger   *log.Logger
	logFile      *os.File
	once         sync.Once
	debugEnabled bool
	debugMu      sync.RWMutex
)

// Init sends all loggers to stdout and the given file.
// Debug output starts enabled when the DEBUG env var is set.
func Init(logPath string) error {
	var err error
	once.Do(func() {
		if dir := filepath.Dir(logPath); dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		setBase(io.MultiWriter(os.Stdout, logFile))

		if os.Getenv("DEBUG") != "" {
			EnableDebug(true)
		}
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugMu.Lock()
	debugEnabled = on
	debugMu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

func setBase(w io.Writer) {
	baseMu.Lock()
	baseLogger = log.New(w, "", log.LstdFlags)
	baseMu.Unlock()
}

func base() *log.Logger {
	baseMu.RLock()
	l := baseLogger
	baseMu.RUnlock()
	if l != nil {
		return l
	}
	// Init was never called (tests, tools): stdout only
	return log.New(os.Stdout, "", log.LstdFlags)
}

// New returns a logger whose lines are tagged with prefix.
func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) out() *log.Logger {
	if l.logger != nil {
		return l.logger
	}
	return base()
}

// WithWriter redirects this logger only. Used by tests to capture output.
func (l *Logger) WithWriter(w io.Writer) *Logger {
	return &Logger{prefix: l.prefix, logger: log.New(w, "", log.LstdFlags)}
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.out().Printf("[%s] INFO: %s", l.prefix, fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.out().Printf("[%s] WARN: %s", l.prefix, fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Error(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	if _, file, line, ok := runtime.Caller(1); ok {
		l.out().Printf("[%s] ERROR: (%s:%d) %s", l.prefix, filepath.Base(file), line, formatted)
		return
	}
	l.out().Printf("[%s] ERROR: %s", l.prefix, formatted)
}

// Fatal logs and panics; service.Start recovers the panic and shuts the app down.
func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	if _, file, line, ok := runtime.Caller(1); ok {
		l.out().Printf("[%s] FATAL: (%s:%d) %s", l.prefix, filepath.Base(file), line, formatted)
	} else {
		l.out().Printf("[%s] FATAL: %s", l.prefix, formatted)
	}
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	l.out().Printf("[%s] DEBUG: %s", l.prefix, fmt.Sprintf(fmtstr, v...))
}
