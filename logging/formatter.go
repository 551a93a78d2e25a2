package logging

import (
	"time"
)

// Formatter 日志格式化接口，返回的切片归调用方所有
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry 日志条目
type LogEntry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}
