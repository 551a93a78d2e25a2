package logging

import (
	"os"
	"sync"
)

// Options 日志配置，通常从配置的 logging 节绑定
type Options struct {
	Level   LogLevel           `json:"level" yaml:"level"`
	Console bool               `json:"console" yaml:"console"`
	File    *FileLoggerOptions `json:"file,omitempty" yaml:"file,omitempty"`
	Zap     *ZapLoggerOptions  `json:"zap,omitempty" yaml:"zap,omitempty"`
}

// DefaultOptions 只输出到控制台
func DefaultOptions() Options {
	return Options{Level: LogLevelInfo, Console: true}
}

// LoggingBuilder 日志构建器
type LoggingBuilder struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
	mu           sync.RWMutex
}

// NewLoggingBuilder 创建日志构建器
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{
		minimumLevel: LogLevelInfo,
	}
}

// Configure 按 Options 添加提供者
func (b *LoggingBuilder) Configure(opts Options) *LoggingBuilder {
	b.SetMinimumLevel(opts.Level)
	if opts.Console {
		b.AddConsole()
	}
	if opts.File != nil && opts.File.Path != "" {
		b.AddFile(opts.File.Path, *opts.File)
	}
	if opts.Zap != nil {
		b.AddZap(*opts.Zap)
	}
	return b
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minimumLevel = level
	return b
}

// AddProvider 添加日志提供者
func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers = append(b.providers, provider)
	return b
}

// AddConsole 添加控制台日志
func (b *LoggingBuilder) AddConsole(options ...ConsoleLoggerOptions) *LoggingBuilder {
	opts := ConsoleLoggerOptions{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ColorOutput:      true,
		Output:           os.Stdout,
	}
	if len(options) > 0 {
		opts = options[0]
	}
	return b.AddProvider(NewConsoleLoggerProvider(opts))
}

// AddFile 添加滚动文件日志
func (b *LoggingBuilder) AddFile(path string, options ...FileLoggerOptions) *LoggingBuilder {
	opts := FileLoggerOptions{
		MaxSizeMB:  100,
		MaxBackups: 10,
	}
	if len(options) > 0 {
		opts = options[0]
	}
	opts.Path = path
	return b.AddProvider(NewFileLoggerProvider(opts))
}

// AddZap 添加 zap 结构化日志
func (b *LoggingBuilder) AddZap(options ZapLoggerOptions) *LoggingBuilder {
	return b.AddProvider(NewZapLoggerProvider(options))
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.RLock()
	defer b.mu.RUnlock()

	factory := &loggerFactory{}
	factory.minimumLevel.set(b.minimumLevel)
	for _, provider := range b.providers {
		factory.AddProvider(provider)
	}
	return factory
}
