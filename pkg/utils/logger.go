package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - настройки логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // stdout, stderr или путь к файлу
	Development bool
}

// Logger - обёртка над zap с доменными хелперами
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт логгер по конфигурации
//
// Пустые значения: уровень info, формат json, вывод stdout.
// Если файл вывода не открывается, используется stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := ParseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		if cfg.Development {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg.Output), level)

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	l := zap.New(core, opts...)
	return &Logger{Logger: l, sugar: l.Sugar()}
}

func openOutput(output string) zapcore.WriteSyncer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// ParseLevel переводит строковый уровень в zapcore.Level (по умолчанию info)
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============ Глобальный логгер ============

// InitGlobalLogger создаёт логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger заменяет глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая его при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// NewNopLogger - логгер без вывода (для тестов и опциональных зависимостей)
func NewNopLogger() *Logger {
	l := zap.NewNop()
	return &Logger{Logger: l, sugar: l.Sugar()}
}

// ============ Методы Logger ============

// With возвращает дочерний логгер с полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent - дочерний логгер компонента
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithMaster - дочерний логгер для операций одного мастера
func (l *Logger) WithMaster(masterID string) *Logger {
	return l.With(MasterID(masterID))
}

// WithCopier - дочерний логгер для операций одного копировщика
func (l *Logger) WithCopier(copierID string) *Logger {
	return l.With(CopierID(copierID))
}

// Sugar возвращает sugared-логгер
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============ Глобальные функции ============

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field) { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{}) { GetGlobalLogger().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{}) { GetGlobalLogger().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(format, args...) }

// ============ Доменные поля ============

func MasterID(id string) zap.Field { return zap.String("master_id", id) }
func CopierID(id string) zap.Field { return zap.String("copier_id", id) }
func TransactionID(id string) zap.Field { return zap.String("transaction_id", id) }
func ContractID(id string) zap.Field { return zap.String("contract_id", id) }
func CopiedTradeID(id string) zap.Field { return zap.String("copied_trade_id", id) }
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }
func Amount(v float64) zap.Field { return zap.Float64("amount", v) }
func Status(status string) zap.Field { return zap.String("status", status) }
func State(state string) zap.Field { return zap.String("state", state) }
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
func UserID(id string) zap.Field { return zap.String("user_id", id) }
func Component(name string) zap.Field { return zap.String("component", name) }

// Field - поле структурированного лога
type Field = zap.Field

// Переэкспорт конструкторов zap, чтобы пакеты не импортировали zap ради полей
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Err      = zap.Error
	Any      = zap.Any
)
