// Package logctx provides the small per-entity log-prefixing helper used
// throughout the service, in place of a structured logging library: plain
// log.Printf with a bracketed component/id prefix.
package logctx

import "log"

// Logger prefixes every message with a component tag and an entity id, e.g.
// "[watcher example.com/chan] poll returned live".
type Logger struct {
	component string
	id        string
}

// New returns a Logger for the given component and entity id.
func New(component, id string) *Logger {
	return &Logger{component: component, id: id}
}

func (l *Logger) prefix() string {
	if l.id == "" {
		return "[" + l.component + "] "
	}
	return "[" + l.component + " " + l.id + "] "
}

// Printf logs an informational message.
func (l *Logger) Printf(format string, args ...any) {
	log.Printf(l.prefix()+format, args...)
}

// Error logs an error-level message. It does not panic or exit; callers
// decide whether the error is fatal.
func (l *Logger) Error(format string, args ...any) {
	log.Printf(l.prefix()+"error: "+format, args...)
}

// Critical logs a message that should also reach ops notification; callers
// combine it with an opsnotify.Notifier.Send call.
func (l *Logger) Critical(format string, args ...any) {
	log.Printf(l.prefix()+"critical: "+format, args...)
}
