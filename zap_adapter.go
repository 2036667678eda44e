package main

import (
	"go.uber.org/zap"
)

// zapAdapter bridges zap to the Temporal SDK's keyval logger interface.
type zapAdapter struct {
	logger *zap.SugaredLogger
}

func newZapAdapter(logger *zap.Logger) *zapAdapter {
	return &zapAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *zapAdapter) Debug(msg string, keyvals ...interface{}) {
	a.logger.Debugw(msg, normalize(keyvals)...)
}

func (a *zapAdapter) Info(msg string, keyvals ...interface{}) {
	a.logger.Infow(msg, normalize(keyvals)...)
}

func (a *zapAdapter) Warn(msg string, keyvals ...interface{}) {
	a.logger.Warnw(msg, normalize(keyvals)...)
}

func (a *zapAdapter) Error(msg string, keyvals ...interface{}) {
	a.logger.Errorw(msg, normalize(keyvals)...)
}

// normalize pads odd keyval lists so zap does not drop them.
func normalize(keyvals []interface{}) []interface{} {
	if len(keyvals)%2 == 0 {
		return keyvals
	}
	return append(keyvals, "(missing)")
}
