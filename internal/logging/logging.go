// Package logging provides categorized structured logging for the
// sandbox pipeline, backed by go.uber.org/zap. Logging is purely
// operational diagnostics: per spec.md invariant I1, log output never
// participates in the ChildRecord/ExecutionResult envelope a caller
// receives.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Category names one of the pipeline's four stages.
type Category string

const (
	CategoryAnalyzer Category = "analyzer"
	CategoryRuntime  Category = "runtime"
	CategoryCage     Category = "cage"
	CategoryLauncher Category = "launcher"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger = zap.NewNop()
	loggers             = make(map[Category]*zap.SugaredLogger)
)

// Init installs the base logger used by all categories. Call once at
// process startup; safe to call again in tests to swap loggers.
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Get returns the sugared logger for a category, tagged so log lines can
// be filtered by pipeline stage.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := base.With(zap.String("category", string(cat))).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes all buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func AnalyzerDebug(msg string, args ...interface{}) { Get(CategoryAnalyzer).Debugf(msg, args...) }
func RuntimeDebug(msg string, args ...interface{})  { Get(CategoryRuntime).Debugf(msg, args...) }
func CageDebug(msg string, args ...interface{})     { Get(CategoryCage).Debugf(msg, args...) }
func CageWarn(msg string, args ...interface{})      { Get(CategoryCage).Warnf(msg, args...) }
func LauncherDebug(msg string, args ...interface{}) { Get(CategoryLauncher).Debugf(msg, args...) }
func LauncherWarn(msg string, args ...interface{})  { Get(CategoryLauncher).Warnf(msg, args...) }
