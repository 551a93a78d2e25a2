package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerOptions zap 输出选项
type ZapLoggerOptions struct {
	// Format json 或 console
	Format string `json:"format" yaml:"format"`
	// Development 开启调用位置与 DPanic 行为
	Development bool `json:"development" yaml:"development"`
}

// ZapLoggerProvider 基于 zap 的日志提供者
type ZapLoggerProvider struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

// NewZapLoggerProvider 使用给定选项构建 zap，输出到 stdout
func NewZapLoggerProvider(options ZapLoggerOptions) *ZapLoggerProvider {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(options.Format, "console") {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if options.Development {
		opts = append(opts, zap.Development(), zap.AddCaller(), zap.AddCallerSkip(2))
	}
	return &ZapLoggerProvider{base: zap.New(core, opts...), level: level}
}

// NewZapLoggerProviderFrom 包装已有的 zap.Logger
func NewZapLoggerProviderFrom(logger *zap.Logger) *ZapLoggerProvider {
	return &ZapLoggerProvider{base: logger, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

func (p *ZapLoggerProvider) CreateLogger(category string) Logger {
	return &zapLogger{logger: p.base.Named(category), category: category, provider: p}
}

func (p *ZapLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.SetLevel(toZapLevel(level))
}

// Close 刷新缓冲
func (p *ZapLoggerProvider) Close() error {
	err := p.base.Sync()
	// stdout 不支持 fsync
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		return nil
	}
	return err
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

type zapLogger struct {
	logger   *zap.Logger
	category string
	provider *ZapLoggerProvider
}

func (l *zapLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.Log(LogLevelFatal, msg, fields...) }

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	zl := toZapLevel(level)
	ce := l.logger.Check(zl, msg)
	if ce == nil {
		return
	}
	ce.Write(zapFields(fields)...)
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(zapFields(fields)...), category: l.category, provider: l.provider}
}

func (l *zapLogger) WithCategory(category string) Logger {
	return l.provider.CreateLogger(category)
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
