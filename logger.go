package sharedevent

import "go.uber.org/zap"

// Logger is the logging interface used throughout the package. It mirrors
// the structured, key-value logging contract used by the rest of the
// pack's app framework so that a caller already running that framework can
// pass its logger straight through; callers on anything else need only
// implement four methods.
//
//	logger.Debug("polling wait object", "slot", slotID, "kind", kind)
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// noopLogger discards everything. Used when a Channel is opened without an
// explicit logger so the protocol code never has to nil-check.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// zapLogger adapts *zap.SugaredLogger to Logger. This is the default
// production logger: NewLogger() wraps a production zap logger the way the
// rest of the pack backs its own Logger interface with zap.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger returns a Logger backed by a production zap.Logger.
func NewLogger() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

// NewLoggerFromZap adapts an existing *zap.Logger.
func NewLoggerFromZap(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.Sugar()}
}

func (l *zapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
