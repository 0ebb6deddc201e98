// Package logger — единый вывод логов tc-gpstimer на zap с учётом quiet.
package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Quiet при true отключает информационные сообщения (Info, Debug); Error выводится всегда.
var Quiet bool

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Init собирает логгер с уровнем level (debug, info, warn, error).
func Init(level string, quiet bool) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("уровень лога %q: %w", level, err)
		}
	}
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.Level = zap.NewAtomicLevelAt(lvl)
	l, err := c.Build()
	if err != nil {
		return err
	}
	Quiet = quiet
	SetLogger(l.Named("tc-gpstimer"))
	return nil
}

// L — текущий логгер.
func L() *zap.Logger { return logger.Load() }

// SetLogger подменяет логгер (тесты).
func SetLogger(l *zap.Logger) { logger.Store(l) }

// Sync сбрасывает буферы.
func Sync() { _ = L().Sync() }

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	L().Info(fmt.Sprintf(format, args...))
}

// Debug — как Info, на уровне debug.
func Debug(format string, args ...interface{}) {
	if Quiet {
		return
	}
	L().Debug(fmt.Sprintf(format, args...))
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	L().Error(fmt.Sprintf(format, args...))
}
