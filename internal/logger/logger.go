package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	globalLogger   *slog.Logger
	logLevel       slog.Level
	tracingEnabled bool
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
)

// Config holds logging configuration, loaded from environment variables.
type Config struct {
	Level          string // DEBUG, INFO, WARN, ERROR
	Format         string // json or text
	TracingEnabled bool
}

// Init initializes the global logger and tracer from environment variables.
func Init() error {
	return InitWithConfig(Config{
		Level:          getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:         getEnvOrDefault("LOG_FORMAT", "json"),
		TracingEnabled: getEnvOrDefault("LOG_TRACING_ENABLED", "true") == "true",
	})
}

// InitWithConfig initializes the logger and tracer with a specific configuration.
func InitWithConfig(cfg Config) error {
	logLevel = parseLogLevel(cfg.Level)
	tracingEnabled = cfg.TracingEnabled

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	if tracingEnabled {
		if err := initTracer(); err != nil {
			globalLogger.Warn("Failed to initialize OpenTelemetry tracer, tracing disabled", "error", err)
			tracingEnabled = false
		}
	}
	return nil
}

func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("intraday-scanner"),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer("intraday-scanner")
	return nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// StartSpan starts a new OpenTelemetry span.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !tracingEnabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

func traceAttrs(ctx context.Context) []any {
	if !tracingEnabled {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return []any{
		"trace_id", span.SpanContext().TraceID().String(),
		"span_id", span.SpanContext().SpanID().String(),
	}
}

// Debug logs a debug message.
func Debug(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info message.
func Info(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func Warn(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error message.
func Error(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args...)
}

// ErrorWithErr logs an error message with an error object, recording the
// error on the active span when tracing is enabled.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	if tracingEnabled {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	allArgs := append([]any{"error", err}, args...)
	log(ctx, slog.LevelError, msg, allArgs...)
}

func log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if globalLogger == nil {
		globalLogger = slog.Default()
	}
	if ta := traceAttrs(ctx); ta != nil {
		args = append(ta, args...)
	}
	globalLogger.Log(ctx, level, msg, args...)
}

// Signal logs an emitted trade signal (always at info level).
func Signal(ctx context.Context, symbol, strategy string, score float64, stars, qty int, fields ...any) {
	if tracingEnabled {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.AddEvent("signal_emitted", trace.WithAttributes(
				attribute.String("symbol", symbol),
				attribute.String("strategy", strategy),
				attribute.Float64("score", score),
				attribute.Int("stars", stars),
				attribute.Int("quantity", qty),
			))
		}
	}
	allFields := append([]any{
		"type", "SIGNAL",
		"symbol", symbol,
		"strategy", strategy,
		"score", score,
		"stars", stars,
		"quantity", qty,
	}, fields...)
	log(ctx, slog.LevelInfo, "Signal emitted", allFields...)
}

// Exit logs a trade exit (always at info level).
func Exit(ctx context.Context, symbol, reason string, exitPrice, pnl, pnlPct float64, fields ...any) {
	if tracingEnabled {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.AddEvent("trade_exit", trace.WithAttributes(
				attribute.String("symbol", symbol),
				attribute.String("reason", reason),
				attribute.Float64("exit_price", exitPrice),
				attribute.Float64("pnl", pnl),
			))
		}
	}
	allFields := append([]any{
		"type", "EXIT",
		"symbol", symbol,
		"reason", reason,
		"exit_price", exitPrice,
		"pnl", pnl,
		"pnl_pct", pnlPct,
	}, fields...)
	log(ctx, slog.LevelInfo, "Trade exited", allFields...)
}

// OperationTimer measures an operation's duration under an OpenTelemetry span.
type OperationTimer struct {
	ctx   context.Context
	span  trace.Span
	start time.Time
	name  string
}

// StartOperation starts timing an operation with an OpenTelemetry span.
func StartOperation(ctx context.Context, operation string) *OperationTimer {
	var span trace.Span
	if tracingEnabled {
		ctx, span = StartSpan(ctx, operation)
	}
	return &OperationTimer{ctx: ctx, span: span, start: time.Now(), name: operation}
}

// Context returns the context carrying the operation's span.
func (ot *OperationTimer) Context() context.Context {
	return ot.ctx
}

// End completes the operation timer.
func (ot *OperationTimer) End() {
	duration := time.Since(ot.start)
	if tracingEnabled && ot.span != nil {
		ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		ot.span.SetStatus(codes.Ok, "completed")
		ot.span.End()
	}
	Debug(ot.ctx, "Operation completed", "operation", ot.name, "duration_ms", duration.Milliseconds())
}

// EndWithError completes the operation timer recording a failure.
func (ot *OperationTimer) EndWithError(err error) {
	duration := time.Since(ot.start)
	if tracingEnabled && ot.span != nil {
		ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		ot.span.RecordError(err)
		ot.span.SetStatus(codes.Error, err.Error())
		ot.span.End()
	}
	Error(ot.ctx, "Operation failed", "operation", ot.name, "duration_ms", duration.Milliseconds(), "error", err)
}
