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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSprintf_NoArgsReturnsFormatVerbatim(t *testing.T) {
	assert.Equal(t, "plain message with %s", sprintf("plain message with %s"))
}

func TestSprintf_WithArgsInterpolates(t *testing.T) {
	assert.Equal(t, "inode 42 removed", sprintf("inode %d removed", 42))
}

func TestSeverityName_MapsEachLevel(t *testing.T) {
	assert.Equal(t, "TRACE", severityName(TRACE, slog.Int64(slog.LevelKey, int64(traceLevel))))
	assert.Equal(t, "DEBUG", severityName(DEBUG, slog.Int64(slog.LevelKey, int64(slog.LevelDebug))))
	assert.Equal(t, "WARNING", severityName(WARNING, slog.Int64(slog.LevelKey, int64(slog.LevelWarn))))
	assert.Equal(t, "ERROR", severityName(ERROR, slog.Int64(slog.LevelKey, int64(slog.LevelError))))
	assert.Equal(t, "INFO", severityName(INFO, slog.Int64(slog.LevelKey, int64(slog.LevelInfo))))
}

func TestLevel_SlogLevelMapping(t *testing.T) {
	assert.Equal(t, traceLevel, TRACE.slogLevel())
	assert.Equal(t, slog.LevelDebug, DEBUG.slogLevel())
	assert.Equal(t, slog.LevelInfo, INFO.slogLevel())
	assert.Equal(t, slog.LevelWarn, WARNING.slogLevel())
	assert.Equal(t, slog.LevelError, ERROR.slogLevel())
}

func TestInit_StderrWhenPathEmptyUsesTextHandler(t *testing.T) {
	require.NoError(t, Init("", FormatText, INFO, LogRotateConfig{}))
	assert.Nil(t, defaultLoggerFactory.file)
}

func TestInit_NonEmptyPathConfiguresRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloudsync.log")
	require.NoError(t, Init(path, FormatJSON, DEBUG, LogRotateConfig{MaxFileSizeMB: 10, BackupFileCount: 3}))
	require.NotNil(t, defaultLoggerFactory.file)
	assert.Equal(t, path, defaultLoggerFactory.file.Filename)
	assert.Equal(t, 10, defaultLoggerFactory.file.MaxSize)
	assert.Equal(t, 3, defaultLoggerFactory.file.MaxBackups)

	// restore stderr logging so later tests in the package aren't affected
	require.NoError(t, Init("", FormatText, INFO, LogRotateConfig{}))
}

func TestCreateJsonOrTextHandler_JSONEmitsSeverityKey(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{format: FormatJSON, level: INFO}
	h := f.createJsonOrTextHandler(&buf, INFO, "")
	l := slog.New(h)
	l.Info("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "INFO", decoded["severity"])
	assert.Equal(t, "hello", decoded["msg"])
}

func TestCreateJsonOrTextHandler_PrefixIsPrependedToMessage(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{format: FormatJSON, level: INFO}
	h := f.createJsonOrTextHandler(&buf, INFO, "[idb] ")
	slog.New(h).Info("started")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "[idb] started", decoded["msg"])
}
