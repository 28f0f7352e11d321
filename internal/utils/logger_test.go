// internal/utils/logger_test.go
package utils

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func fieldValue(entry observer.LoggedEntry, key string) (interface{}, bool) {
	for _, field := range entry.Context {
		if field.Key == key {
			return field.String, true
		}
	}
	return nil, false
}

func TestLogAPIRequestCarriesRequestID(t *testing.T) {
	logger, logs := observedLogger()
	sl := NewServiceLogger(logger, "http-server")

	sl.LogAPIRequest("req-42", "GET", "/health", "curl", "127.0.0.1", 200, time.Millisecond)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("level = %v, want info", entries[0].Level)
	}
	if id, ok := fieldValue(entries[0], "request_id"); !ok || id != "req-42" {
		t.Errorf("request_id = %v, want req-42", id)
	}
}

func TestLogAPIRequestLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{200, zapcore.InfoLevel},
		{404, zapcore.WarnLevel},
		{500, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		logger, logs := observedLogger()
		sl := NewServiceLogger(logger, "http-server")

		sl.LogAPIRequest("id", "GET", "/x", "", "", tt.status, 0)

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("status %d logged %d entries, want 1", tt.status, len(entries))
		}
		if entries[0].Level != tt.level {
			t.Errorf("status %d logged at %v, want %v", tt.status, entries[0].Level, tt.level)
		}
	}
}

func TestChannelLoggerLogTransfer(t *testing.T) {
	logger, logs := observedLogger()
	cl := NewChannelLogger(logger, "data")

	cl.LogTransfer("tx", 16, nil)
	cl.LogTransfer("tx", 4, errors.New("line stalled"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("clean transfer logged at %v, want debug", entries[0].Level)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("failed transfer logged at %v, want error", entries[1].Level)
	}
	if ch, ok := fieldValue(entries[0], "channel"); !ok || ch != "data" {
		t.Errorf("channel = %v, want data", ch)
	}
}
