// Copyright 2026 The CloudSync Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the process-wide structured logger used by the
// IDB, Event Observer, and their collaborators. Severity names follow the
// five levels the core cares about: TRACE, DEBUG, INFO, WARNING, ERROR.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// level is the package's own severity scale, one finer than slog's (TRACE
// sits below DEBUG).
type level int

const (
	TRACE level = iota - 1
	DEBUG
	INFO
	WARNING
	ERROR
)

const traceLevel = slog.Level(-8)

func (l level) slogLevel() slog.Level {
	switch l {
	case TRACE:
		return traceLevel
	case DEBUG:
		return slog.LevelDebug
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format selects the on-disk representation.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type loggerFactory struct {
	format          Format
	level           level
	file            *lumberjack.Logger
	sysWriter       io.Writer
	logRotateConfig LogRotateConfig
}

type LogRotateConfig struct {
	MaxFileSizeMB  int
	BackupFileCount int
	Compress       bool
}

var defaultLoggerFactory = &loggerFactory{
	format:    FormatText,
	level:     INFO,
	sysWriter: os.Stderr,
}

var defaultLogger = slog.New(defaultLoggerFactory.createHandler())

// Init reconfigures the package logger. path == "" logs to stderr.
func Init(path string, format Format, lvl level, rotate LogRotateConfig) error {
	f := &loggerFactory{format: format, level: lvl, logRotateConfig: rotate}
	if path == "" {
		f.sysWriter = os.Stderr
	} else {
		f.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotate.MaxFileSizeMB,
			MaxBackups: rotate.BackupFileCount,
			Compress:   rotate.Compress,
		}
	}
	defaultLoggerFactory = f
	defaultLogger = slog.New(f.createHandler())
	return nil
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	return f.sysWriter
}

func (f *loggerFactory) createHandler() slog.Handler {
	return f.createJsonOrTextHandler(f.writer(), f.level, "")
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, lvl level, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: lvl.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(lvl, a))
			}
			if a.Key == slog.MessageKey && prefix != "" {
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
			return a
		},
	}
	if f.format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(_ level, a slog.Attr) string {
	// slog's handlers pass the record level as a KindAny slog.Level value.
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		lvl = slog.Level(a.Value.Int64())
	}
	switch lvl {
	case traceLevel:
		return "TRACE"
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func Tracef(format string, args ...any) { logAt(traceLevel, format, args...) }
func Debugf(format string, args ...any) { logAt(slog.LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logAt(slog.LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logAt(slog.LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logAt(slog.LevelError, format, args...) }

func logAt(lvl slog.Level, format string, args ...any) {
	defaultLogger.Log(context.Background(), lvl, sprintf(format, args...))
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
