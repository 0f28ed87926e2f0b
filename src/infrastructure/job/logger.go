package job

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"

	"pdfrag/src/log"
)

// LoggerAdapter routes watermill logs into the application logger.
type LoggerAdapter struct {
	logger logr.Logger
}

var _ watermill.LoggerAdapter = (*LoggerAdapter)(nil)

func NewLoggerAdapter() *LoggerAdapter {
	return &LoggerAdapter{logger: log.WithName("watermill")}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(err, msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Info(msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.V(1).Info(msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.V(2).Info(msg, keysAndValues(fields)...)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{logger: l.logger.WithValues(keysAndValues(fields)...)}
}

func keysAndValues(fields watermill.LogFields) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
