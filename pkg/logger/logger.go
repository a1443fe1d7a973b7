package logger

// Backend is the interface a logging backend must implement.
type Backend interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

var backend Backend

// Init installs the global logging backend. It must be called once from main
// before any logging function is used; calls before Init are dropped.
func Init(b Backend) {
	backend = b
}

// Debug writes a message at DEBUG level.
func Debug(message string, keyvals ...any) {
	if backend == nil {
		return
	}
	backend.Debug(message, keyvals...)
}

// Info writes a message at INFO level.
func Info(message string, keyvals ...any) {
	if backend == nil {
		return
	}
	backend.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func Warn(message string, keyvals ...any) {
	if backend == nil {
		return
	}
	backend.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func Error(message string, keyvals ...any) {
	if backend == nil {
		return
	}
	backend.Error(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	if backend == nil {
		return
	}
	backend.Fatal(message, keyvals...)
}
