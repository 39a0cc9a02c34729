package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// Watermill adapts a zap logger to watermill.LoggerAdapter.
func Watermill(log *zap.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{log: OrNop(log)}
}

type watermillAdapter struct {
	log *zap.Logger
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, zapFields(fields)...)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, zapFields(fields)...)
}

// Trace is logged at debug level; zap has no trace level.
func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, zapFields(fields)...)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{log: a.log.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
