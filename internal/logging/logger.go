// Package logging provides config-driven categorized logging for cv.
// Each category maps to a zap.Logger so callers write
// `logging.Infof(logging.CategorySync, "...")` style statements without
// threading a logger through every function; the underlying zap core can
// be swapped (e.g. in tests) via Configure.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies which subsystem emitted a log line.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryParser    Category = "parser"
	CategorySync      Category = "sync"
	CategoryGraph     Category = "graph"
	CategoryVector    Category = "vector"
	CategoryEmbedding Category = "embedding"
	CategorySummary   Category = "summary"
	CategoryManifold  Category = "manifold"
	CategoryTraversal Category = "traversal"
	CategoryDispatch  Category = "dispatch"
	CategorySupervisor Category = "supervisor"
	CategoryAuthored  Category = "authored"
)

var (
	mu       sync.RWMutex
	base     *zap.Logger = zap.NewNop()
	debugOn  bool
)

// Configure installs the base zap.Logger used by every category and
// toggles debug-level output. Call once at process start; safe to call
// again in tests to redirect output.
func Configure(l *zap.Logger, debug bool) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	debugOn = debug
}

// NewDevelopment builds a reasonable default console logger, matching the
// teacher's CLI boot sequence (zap.NewProductionConfig with an optional
// debug level override).
func NewDevelopment(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Get returns a logger scoped to category, with a "category" field set.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With(zap.String("category", string(category))).Sugar()
}

// Debugf logs at debug level under category, a no-op unless debug is on.
func Debugf(category Category, format string, args ...any) {
	mu.RLock()
	on := debugOn
	mu.RUnlock()
	if !on {
		return
	}
	Get(category).Debugf(format, args...)
}

// Infof logs at info level under category.
func Infof(category Category, format string, args ...any) {
	Get(category).Infof(format, args...)
}

// Warnf logs at warn level under category.
func Warnf(category Category, format string, args ...any) {
	Get(category).Warnf(format, args...)
}

// Errorf logs at error level under category.
func Errorf(category Category, format string, args ...any) {
	Get(category).Errorf(format, args...)
}

// Timer measures and logs the duration of an operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op under category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop ends the timer, logging the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Debugf(t.category, "%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs at warn level if elapsed exceeds threshold,
// otherwise at debug level — used to flag slow store round-trips.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Warnf(t.category, "%s took %v (threshold %v)", t.op, elapsed, threshold)
	} else {
		Debugf(t.category, "%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
