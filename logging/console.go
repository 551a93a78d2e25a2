package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	Output           io.Writer
}

// ConsoleLoggerProvider 控制台日志提供者，同步写出文本格式
type ConsoleLoggerProvider struct {
	level     levelHolder
	formatter Formatter
	output    io.Writer
	mu        sync.Mutex
}

func NewConsoleLoggerProvider(options ConsoleLoggerOptions) *ConsoleLoggerProvider {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	return &ConsoleLoggerProvider{
		level: levelHolder{level: LogLevelInfo},
		formatter: &TextFormatter{
			IncludeTimestamp: options.IncludeTimestamp,
			TimestampFormat:  options.TimestampFormat,
			ColorOutput:      options.ColorOutput,
		},
		output: options.Output,
	}
}

func (p *ConsoleLoggerProvider) CreateLogger(category string) Logger {
	return &entryLogger{category: category, level: p.level.get, out: p}
}

func (p *ConsoleLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.set(level)
}

func (p *ConsoleLoggerProvider) write(entry *LogEntry) {
	data, err := p.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console logger format error: %v\n", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output.Write(data)
}

// colorize 为日志级别添加颜色
func colorize(level LogLevel, text string) string {
	const (
		reset   = "\033[0m"
		gray    = "\033[90m"
		cyan    = "\033[36m"
		green   = "\033[32m"
		yellow  = "\033[33m"
		red     = "\033[31m"
		magenta = "\033[35m"
	)

	switch level {
	case LogLevelTrace:
		return gray + text + reset
	case LogLevelDebug:
		return cyan + text + reset
	case LogLevelInfo:
		return green + text + reset
	case LogLevelWarn:
		return yellow + text + reset
	case LogLevelError:
		return red + text + reset
	case LogLevelFatal:
		return magenta + text + reset
	default:
		return text
	}
}
