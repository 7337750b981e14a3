// Package logger wires slog to either a JSON handler or an
// OpenTelemetry log bridge, selected by environment. Error and warning
// output can be sampled; counters are incremented regardless so totals
// stay accurate.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Level is an alias for slog.Level.
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 1 // log every error unless ERROR_SAMPLE_RATE raises the divisor
	programLevel          = new(slog.LevelVar)
	shutdownFunc    func(context.Context) error
)

// Counters incremented even when the corresponding log line is
// sampled away.
var (
	TotalErrors     atomic.Int64
	TotalWarnings   atomic.Int64
	CompileFailures atomic.Int64
	EvalErrors      atomic.Int64
	Total5xxErrors  atomic.Int64
	Total4xxErrors  atomic.Int64
)

func init() {
	programLevel.Set(slog.LevelInfo)

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}
	level, err := ParseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			atomic.StoreInt32(&errorSampleRate, int32(rate))
		}
	}

	if strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true" {
		serviceName := os.Getenv("OTEL_SERVICE_NAME")
		if serviceName == "" {
			serviceName = "scenario-engine"
		}
		shutdown, err := setupOTELLogging(context.Background(), serviceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
			setupJSONLogging()
		} else {
			shutdownFunc = shutdown
		}
	} else {
		setupJSONLogging()
	}
}

func setupJSONLogging() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	processor := sdklog.NewBatchProcessor(exporter)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)

	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(loggerProvider),
	)

	handler := &levelHandler{
		level:   programLevel,
		handler: otelHandler,
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	return loggerProvider.Shutdown, nil
}

// levelHandler wraps a handler to filter by level.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL pipeline. No-op for JSON logging.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level.
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Debug logs a debug-level message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning, subject to sampling. The counter always moves.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error, subject to sampling. The counter always moves.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message, flushes OTEL, and exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// CompileFailure records a scenario that failed to compile.
func CompileFailure() {
	CompileFailures.Add(1)
	TotalErrors.Add(1)
}

// EvalError records a failed evaluation request.
func EvalError() {
	EvalErrors.Add(1)
	TotalErrors.Add(1)
}

// ErrorHttp5xx increments the 5xx counter.
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx increments the 4xx counter.
func WarnHttp4xx() {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)
}
