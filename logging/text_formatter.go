package logging

import (
	"fmt"
)

// TextFormatter 文本格式化器：时间 级别 [类别] 消息 {k=v, ...}
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
	}
}

// Format 格式化日志
func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	buffer := buffers.get()
	defer buffers.put(buffer)

	if f.IncludeTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = "2006-01-02 15:04:05"
		}
		buffer.WriteString(entry.Time.Format(layout))
		buffer.WriteByte(' ')
	}

	if f.ColorOutput {
		buffer.WriteString(colorize(entry.Level, entry.Level.String()))
	} else {
		buffer.WriteString(entry.Level.String())
	}

	if entry.Category != "" {
		buffer.WriteString(" [")
		buffer.WriteString(entry.Category)
		buffer.WriteString("]")
	}

	buffer.WriteByte(' ')
	buffer.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		buffer.WriteString(" {")
		for i, field := range entry.Fields {
			if i > 0 {
				buffer.WriteString(", ")
			}
			buffer.WriteString(field.Key)
			buffer.WriteByte('=')
			fmt.Fprintf(buffer, "%v", field.Value)
		}
		buffer.WriteByte('}')
	}

	buffer.WriteByte('\n')

	// 复制结果，缓冲归还给池
	result := make([]byte, buffer.Len())
	copy(result, buffer.Bytes())
	return result, nil
}
