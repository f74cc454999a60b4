// Package log provides the leveled logging interface used across the
// yagokoro engine.
//
// The Logger interface has four printf-style methods (Debug, Info, Warn,
// Error). Three implementations ship with the package:
//
//   - DefaultLogger — Go standard-library log.Logger with a level filter
//   - GologLogger   — wrapper around github.com/kataras/golog
//   - NoOpLogger    — discards everything
//
// A package-level default logger is available through Debug/Info/Warn/Error
// and can be swapped with SetDefaultLogger, so components that are not handed
// a Logger explicitly still log consistently:
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("ingesting %d documents", n)
//
//	glogger := golog.New()
//	glogger.SetPrefix("[yagokoro] ")
//	log.SetDefaultLogger(log.NewGologLogger(glogger))
//
// Messages below the configured level are filtered out. Never log API keys
// or other secrets; secure.Mask exists for the rare place a key must appear
// in diagnostics.
package log
