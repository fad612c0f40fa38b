// Package logger — единый вывод логов ds3231d с префиксом и учётом quiet.
// Бэкенд — zap; именованные логгеры используются драйверами как аналог dev_info/dev_err.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Quiet при true отключает информационные сообщения; Error выводится всегда.
// Меняется через SetQuiet.
var Quiet bool

var (
	mu        sync.Mutex
	base      *zap.Logger
	requested = zapcore.InfoLevel
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func root() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = level
		cfg.DisableStacktrace = true
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		base = l.Named("ds3231d")
	}
	return base
}

// SetLevel меняет уровень логирования ("debug", "info", "warn", "error").
// Неизвестное значение оставляет текущий уровень.
func SetLevel(s string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return
	}
	mu.Lock()
	requested = l
	applyLevel()
	mu.Unlock()
}

// SetQuiet включает режим quiet: уровень всех логгеров, включая именованные,
// поднимается не ниже warn.
func SetQuiet(q bool) {
	mu.Lock()
	Quiet = q
	applyLevel()
	mu.Unlock()
}

func applyLevel() {
	l := requested
	if Quiet && l < zapcore.WarnLevel {
		l = zapcore.WarnLevel
	}
	level.SetLevel(l)
}

// Use подменяет базовый логгер (например zap.NewNop() или zaptest в тестах).
func Use(l *zap.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// Named возвращает логгер устройства или подсистемы.
func Named(name string) *zap.SugaredLogger {
	return root().Named(name).Sugar()
}

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	root().Sugar().Infof(format, args...)
}

// Debug выводит отладочное сообщение (виден только при log_level: debug).
func Debug(format string, args ...interface{}) {
	root().Sugar().Debugf(format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	root().Sugar().Errorf(format, args...)
}

// Sync сбрасывает буферы логгера перед выходом.
func Sync() {
	_ = root().Sync()
}
