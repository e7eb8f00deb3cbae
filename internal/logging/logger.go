package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// zapLevel отображает уровень на zap. TRACE у zap нет, пишем его как DEBUG.
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case TRACE, DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// ParseLevel разбирает уровень из конфигурации ("debug", "info", ...)
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Options описывает настройки базового логгера
type Options struct {
	Level  string // trace|debug|info|warn|error
	Format string // "json" или "console"
	Dir    string // каталог для файла логов; пусто — только stdout
}

// Logger представляет логгер компонента поверх zap
type Logger struct {
	component string
	z         *zap.Logger
	s         *zap.SugaredLogger
	level     zap.AtomicLevel
	file      *os.File
}

var (
	baseMu     sync.RWMutex
	baseCore   zapcore.Core
	baseLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	baseFile   *os.File
	defaultLog *Logger
)

// Init настраивает базовое ядро zap, от которого создаются логгеры компонентов.
// Повторный вызов заменяет ядро (уже выданные логгеры продолжают писать в старое).
func Init(opts Options) error {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level).zapLevel())

	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if opts.Format == "json" {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encCfg.ConsoleSeparator = "  "
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}

	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("ошибка создания директории логов: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		filename := filepath.Join(opts.Dir, fmt.Sprintf("server_%s.log", timestamp))

		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("ошибка создания файла логов: %w", err)
		}
		file = f
		// В файл пишем всё, включая DEBUG, в JSON
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(f), zapcore.DebugLevel))
	}

	baseMu.Lock()
	if baseFile != nil {
		baseFile.Close()
	}
	baseCore = zapcore.NewTee(cores...)
	baseLevel = level
	baseFile = file
	defaultLog = newFromCore("server", baseCore, level)
	baseMu.Unlock()

	return nil
}

// InitDefaultLogger инициализирует логирование с настройками по умолчанию
func InitDefaultLogger(component string) error {
	if err := Init(Options{Level: "info", Format: "console"}); err != nil {
		return err
	}
	baseMu.Lock()
	defaultLog = newFromCore(component, baseCore, baseLevel)
	baseMu.Unlock()
	return nil
}

// CloseDefaultLogger сбрасывает буферы и закрывает файл логов
func CloseDefaultLogger() {
	baseMu.Lock()
	defer baseMu.Unlock()

	if defaultLog != nil {
		_ = defaultLog.z.Sync()
	}
	if baseFile != nil {
		baseFile.Close()
		baseFile = nil
	}
}

// NewLogger создаёт логгер компонента от базового ядра
func NewLogger(component string) (*Logger, error) {
	baseMu.RLock()
	core := baseCore
	level := baseLevel
	baseMu.RUnlock()

	if core == nil {
		// Init ещё не вызывали — пишем в stdout с уровнем INFO
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		core = zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	}
	return newFromCore(component, core, level), nil
}

// NewWithCore создаёт логгер поверх произвольного ядра (используется в тестах с zaptest/observer)
func NewWithCore(component string, core zapcore.Core) *Logger {
	return newFromCore(component, core, zap.NewAtomicLevelAt(zapcore.DebugLevel))
}

// NewNop возвращает логгер, который ничего не пишет
func NewNop() *Logger {
	return newFromCore("nop", zapcore.NewNopCore(), zap.NewAtomicLevelAt(zapcore.ErrorLevel))
}

func newFromCore(component string, core zapcore.Core, level zap.AtomicLevel) *Logger {
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(component)
	return &Logger{
		component: component,
		z:         z,
		s:         z.Sugar(),
		level:     level,
	}
}

// Component возвращает имя компонента
func (l *Logger) Component() string { return l.component }

// Zap возвращает структурированный zap-логгер компонента
func (l *Logger) Zap() *zap.Logger { return l.z.WithOptions(zap.AddCallerSkip(-1)) }

// With возвращает дочерний логгер с постоянными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	z := l.z.With(fields...)
	return &Logger{component: l.component, z: z, s: z.Sugar(), level: l.level}
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.s.Debugf(format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.s.Infof(format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.s.Warnf(format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// Close сбрасывает буферы логгера
func (l *Logger) Close() error {
	err := l.z.Sync()
	if l.file != nil {
		if cerr := l.file.Close(); cerr != nil {
			return cerr
		}
	}
	// Sync для stdout на linux возвращает EINVAL — это не ошибка
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		return nil
	}
	return err
}

func current() *Logger {
	baseMu.RLock()
	l := defaultLog
	baseMu.RUnlock()
	return l
}

// Trace логирует сообщение уровня TRACE в логгер по умолчанию
func Trace(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.s.Debugf(format, args...)
	}
}

// Debug логирует сообщение уровня DEBUG в логгер по умолчанию
func Debug(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.s.Debugf(format, args...)
	}
}

// Info логирует сообщение уровня INFO в логгер по умолчанию
func Info(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.s.Infof(format, args...)
	}
}

// Warn логирует сообщение уровня WARN в логгер по умолчанию
func Warn(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.s.Warnf(format, args...)
	}
}

// Error логирует сообщение уровня ERROR в логгер по умолчанию
func Error(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.s.Errorf(format, args...)
	}
}
