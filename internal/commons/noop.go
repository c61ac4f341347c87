package commons

import "time"

// NewTestLogger returns a Logger that discards everything. Test files
// across this module call it the way the upstream platform's tests
// call commons.NewApplicationLogger().
func NewTestLogger() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}
func (noopLogger) Info(...interface{})           {}
func (noopLogger) Error(...interface{})          {}
func (noopLogger) Benchmark(string, time.Duration) {}
func (noopLogger) With(...interface{}) Logger    { return noopLogger{} }
func (noopLogger) Sync() error                   { return nil }
