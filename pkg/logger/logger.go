package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
)

var (
	Log   *zap.Logger
	sugar *zap.SugaredLogger
)

// noRequestID prefixes lines logged outside a request scope.
const noRequestID = "-"

type requestIDKey struct{}

func init() {
	// Usable before Init so config and bootstrap errors still land
	// somewhere readable.
	dev := zap.NewDevelopmentConfig()
	dev.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	dev.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	l, _ := dev.Build(zap.AddCallerSkip(1))
	Log = l
	sugar = l.Sugar()
}

// Init rebuilds the logger from the loaded configuration. Must run
// after config.Init.
func Init() error {
	cfg := config.GlobalConfig.Logger

	syncer, err := buildSyncer(cfg)
	if err != nil {
		return err
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		syncer,
		zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
	)
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	sugar = Log.Sugar()
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// buildSyncer resolves the output target: console, file, or both.
func buildSyncer(cfg config.LoggerConfig) (zapcore.WriteSyncer, error) {
	if cfg.Output != "file" && cfg.Output != "both" {
		return zapcore.AddSync(os.Stdout), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if cfg.Output == "both" {
		return zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(file)), nil
	}
	return zapcore.AddSync(file), nil
}

// ContextWithRequestID tags a context so every *Ctx line it reaches
// carries the request id. The API logging middleware sets it.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return noRequestID
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return noRequestID
}

// Structured variants.

func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Log.Fatal(msg, fields...) }

// Printf variants; lines outside a request scope carry the "-" prefix.

func Debugf(format string, args ...interface{}) {
	sugar.Debugf(noRequestID+"\t"+format, args...)
}

func Infof(format string, args ...interface{}) {
	sugar.Infof(noRequestID+"\t"+format, args...)
}

func Warnf(format string, args ...interface{}) {
	sugar.Warnf(noRequestID+"\t"+format, args...)
}

func Errorf(format string, args ...interface{}) {
	sugar.Errorf(noRequestID+"\t"+format, args...)
}

func Fatalf(format string, args ...interface{}) {
	sugar.Fatalf(noRequestID+"\t"+format, args...)
}

// Context variants prefix the request id so one request's lines
// correlate across handlers and components.

func DebugCtx(ctx context.Context, format string, args ...interface{}) {
	sugar.Debugf(requestID(ctx)+"\t"+format, args...)
}

func InfoCtx(ctx context.Context, format string, args ...interface{}) {
	sugar.Infof(requestID(ctx)+"\t"+format, args...)
}

func WarnCtx(ctx context.Context, format string, args ...interface{}) {
	sugar.Warnf(requestID(ctx)+"\t"+format, args...)
}

func ErrorCtx(ctx context.Context, format string, args ...interface{}) {
	sugar.Errorf(requestID(ctx)+"\t"+format, args...)
}

func FatalCtx(ctx context.Context, format string, args ...interface{}) {
	sugar.Fatalf(requestID(ctx)+"\t"+format, args...)
}

// Sync flushes buffered entries; shutdown calls it last.
func Sync() error {
	return Log.Sync()
}
