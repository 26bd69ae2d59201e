package logx

type nopLogger struct{}

// Nop returns a no-op Logger for tests.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (nopLogger) With(...any) Logger { return nopLogger{} }

var _ Logger = nopLogger{}
