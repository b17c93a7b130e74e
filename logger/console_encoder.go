package logger

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI colors for the console encoder. Single muted palette; themes are a
// non-goal for a background daemon.
const (
	colorReset  = "\x1b[0m"
	colorDim    = "\x1b[2m"
	colorYellow = "\x1b[38;5;179m"
	colorRed    = "\x1b[38;5;167m"
	colorGreen  = "\x1b[38;5;108m"
)

var bufferPool = buffer.NewPool()

// consoleEncoder renders "HH:MM:SS message key=value ..." lines, coloring
// only the level-relevant parts. Structured fields are flattened inline.
type consoleEncoder struct {
	zapcore.Encoder
}

func newConsoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &consoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (e *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{Encoder: e.Encoder.Clone()}
}

func (e *consoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	line.AppendString(colorDim)
	line.AppendString(entry.Time.Format(time.TimeOnly))
	line.AppendString(colorReset)
	line.AppendString(" ")

	switch entry.Level {
	case zapcore.WarnLevel:
		line.AppendString(colorYellow)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		line.AppendString(colorRed)
	default:
		line.AppendString(colorGreen)
	}
	line.AppendString(entry.Message)
	line.AppendString(colorReset)

	for _, f := range fields {
		line.AppendString(" ")
		line.AppendString(colorDim)
		line.AppendString(f.Key)
		line.AppendString("=")
		line.AppendString(fieldValue(f))
		line.AppendString(colorReset)
	}

	line.AppendString("\n")
	return line, nil
}

func fieldValue(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
		return fmt.Sprintf("%v", f.Interface)
	case zapcore.DurationType:
		return time.Duration(f.Integer).String()
	case zapcore.TimeType:
		return time.Unix(0, f.Integer).Format(time.TimeOnly)
	case zapcore.BoolType:
		if f.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.Float64Type:
		return fmt.Sprintf("%g", math.Float64frombits(uint64(f.Integer)))
	case zapcore.Float32Type:
		return fmt.Sprintf("%g", math.Float32frombits(uint32(f.Integer)))
	default:
		return fmt.Sprintf("%v", f.Interface)
	}
}
