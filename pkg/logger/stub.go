package logger

// NewStub returns a Logger that discards everything. Used in tests.
func NewStub() Logger {
	return stubLogger{}
}

type stubLogger struct{}

func (s stubLogger) With(string) Logger    { return s }
func (s stubLogger) Debugf(string, ...any) {}
func (s stubLogger) Infof(string, ...any)  {}
func (s stubLogger) Warnf(string, ...any)  {}
func (s stubLogger) Errorf(string, ...any) {}
func (s stubLogger) Panicf(string, ...any) {}
func (s stubLogger) Info(error)            {}
func (s stubLogger) Warn(error)            {}
func (s stubLogger) Error(error)           {}
func (s stubLogger) Panic(error)           {}
