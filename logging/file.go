package logging

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLoggerOptions 文件日志选项，按大小滚动
type FileLoggerOptions struct {
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `json:"compress" yaml:"compress"`
	// JSON 为 true 时每行一个 JSON 对象
	JSON bool `json:"json" yaml:"json"`
	// BufferSize 异步写入队列长度
	BufferSize int `json:"bufferSize" yaml:"bufferSize"`
}

// FileLoggerProvider 文件日志提供者：异步写入 lumberjack 滚动文件
type FileLoggerProvider struct {
	level  levelHolder
	file   io.WriteCloser
	writer *AsyncWriter
}

func NewFileLoggerProvider(options FileLoggerOptions) *FileLoggerProvider {
	if options.MaxSizeMB <= 0 {
		options.MaxSizeMB = 100
	}
	if options.BufferSize <= 0 {
		options.BufferSize = 1024
	}
	file := &lumberjack.Logger{
		Filename:   options.Path,
		MaxSize:    options.MaxSizeMB,
		MaxBackups: options.MaxBackups,
		MaxAge:     options.MaxAgeDays,
		Compress:   options.Compress,
		LocalTime:  true,
	}

	var formatter Formatter = NewTextFormatter()
	if options.JSON {
		formatter = NewJSONFormatter()
	}
	return &FileLoggerProvider{
		level:  levelHolder{level: LogLevelInfo},
		file:   file,
		writer: NewAsyncWriter(file, formatter, options.BufferSize),
	}
}

func (p *FileLoggerProvider) CreateLogger(category string) Logger {
	return &entryLogger{category: category, level: p.level.get, out: p}
}

func (p *FileLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.set(level)
}

func (p *FileLoggerProvider) write(entry *LogEntry) {
	p.writer.WriteLog(entry)
}

// Close 等待队列写完后关闭文件
func (p *FileLoggerProvider) Close() error {
	p.writer.Close()
	return p.file.Close()
}
