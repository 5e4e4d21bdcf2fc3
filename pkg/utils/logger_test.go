package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newBufferLogger - логгер, пишущий JSON в буфер
func newBufferLogger(buf *bytes.Buffer, level zapcore.Level) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey: "message",
			LevelKey:   "level",
		}),
		zapcore.AddSync(buf),
		level,
	)
	l := zap.New(core)
	return &Logger{Logger: l, sugar: l.Sugar()}
}

// ============================================================
// Тесты InitLogger
// ============================================================

func TestInitLogger_Variants(t *testing.T) {
	tests := []struct {
		name string
		cfg  LogConfig
	}{
		{"defaults", LogConfig{}},
		{"json", LogConfig{Level: "info", Format: "json"}},
		{"text", LogConfig{Level: "debug", Format: "text"}},
		{"development", LogConfig{Level: "debug", Format: "text", Development: true}},
		{"stderr", LogConfig{Output: "stderr"}},
		{"invalid output falls back to stderr", LogConfig{Output: "/nonexistent/directory/log.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := InitLogger(tt.cfg)
			if logger == nil || logger.Logger == nil {
				t.Fatal("InitLogger returned nil")
			}
			if logger.sugar == nil {
				t.Fatal("Logger.sugar is nil")
			}
		})
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copytrader.log")

	logger := InitLogger(LogConfig{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	logger.Info("trade replicated", MasterID("m-1"), CopierID("c-1"))
	logger.Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if len(content) == 0 {
		t.Fatal("Log file is empty")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("Log entry is not valid JSON: %v", err)
	}
	if entry["master_id"] != "m-1" || entry["copier_id"] != "c-1" {
		t.Errorf("fields missing in entry: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{" info ", zapcore.InfoLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

// ============================================================
// Тесты глобального логгера
// ============================================================

func TestGlobalLogger_LazyInit(t *testing.T) {
	globalMu.Lock()
	globalLogger = nil
	globalMu.Unlock()

	logger := GetGlobalLogger()
	if logger == nil {
		t.Fatal("GetGlobalLogger returned nil")
	}
	if GetGlobalLogger() != logger {
		t.Error("GetGlobalLogger returned different loggers")
	}
}

func TestInitGlobalLogger(t *testing.T) {
	logger := InitGlobalLogger(LogConfig{Level: "warn"})
	if GetGlobalLogger() != logger {
		t.Error("InitGlobalLogger did not set the global logger")
	}

	other := NewNopLogger()
	SetGlobalLogger(other)
	if GetGlobalLogger() != other {
		t.Error("SetGlobalLogger did not set the logger")
	}
}

func TestGlobalLoggingFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalLogger(newBufferLogger(&buf, zapcore.DebugLevel))
	defer SetGlobalLogger(NewNopLogger())

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
	Debugf("debugf %s %d", "test", 1)
	Infof("infof %s %d", "test", 2)
	Warnf("warnf %s %d", "test", 3)
	Errorf("errorf %s %d", "test", 4)

	output := buf.String()
	for _, want := range []string{
		"debug message", "info message", "warn message", "error message",
		"debugf test 1", "infof test 2", "warnf test 3", "errorf test 4",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("%q not found in output", want)
		}
	}
}

// ============================================================
// Тесты методов Logger
// ============================================================

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, zapcore.InfoLevel)

	logger.WithComponent("engine").WithMaster("m-7").WithCopier("c-9").Info("child")

	output := buf.String()
	for _, want := range []string{`"component":"engine"`, `"master_id":"m-7"`, `"copier_id":"c-9"`} {
		if !strings.Contains(output, want) {
			t.Errorf("%s not found in output: %s", want, output)
		}
	}

	if logger.With(zap.String("k", "v")) == logger {
		t.Error("With should return a new logger")
	}
	if logger.Sugar() == nil {
		t.Error("Sugar returned nil")
	}
}

func TestFieldConstructors(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, zapcore.InfoLevel)

	logger.Info("test",
		MasterID("m-1"),
		CopierID("c-1"),
		TransactionID("tx-1"),
		ContractID("ct-1"),
		CopiedTradeID("rec-1"),
		Symbol("R_100"),
		Amount(12.5),
		Status("SUCCESS"),
		State("connected"),
		Latency(15.5),
		RequestID("req-789"),
		UserID("u-1"),
		Component("settlement"),
	)

	output := buf.String()
	expected := []string{
		"master_id", "m-1",
		"copier_id", "c-1",
		"transaction_id", "tx-1",
		"contract_id", "ct-1",
		"copied_trade_id", "rec-1",
		"symbol", "R_100",
		"amount", "12.5",
		"status", "SUCCESS",
		"state", "connected",
		"latency_ms", "15.5",
		"request_id", "req-789",
		"user_id", "u-1",
		"component", "settlement",
	}
	for _, field := range expected {
		if !strings.Contains(output, field) {
			t.Errorf("Field %q not found in output: %s", field, output)
		}
	}
}

func BenchmarkLogger_Info(b *testing.B) {
	logger := InitLogger(LogConfig{Level: "info", Output: os.DevNull})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("trade replicated", MasterID("m-1"), Amount(10))
	}
}
