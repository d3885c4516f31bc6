// Package log provides the leveled logger used across the aggregator
// (log.D.F("...", args), log.E.Ln("...")), built on github.com/fatih/color.
package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Level identifies a logger severity.
type Level int

const (
	Off Level = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var names = map[Level]string{
	Fatal: "FTL", Error: "ERR", Warn: "WRN",
	Info: "INF", Debug: "DBG", Trace: "TRC",
}

var colors = map[Level]*color.Color{
	Fatal: color.New(color.FgRed, color.Bold),
	Error: color.New(color.FgRed),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgCyan),
	Debug: color.New(color.FgWhite),
	Trace: color.New(color.FgHiBlack),
}

// current is the minimum level that will be printed. Defaults to Info.
var current = Info

// SetLevel parses one of fatal/error/warn/info/debug/trace (case
// insensitive) and sets it as the active threshold. Unknown names leave
// the threshold unchanged.
func SetLevel(s string) {
	s = strings.ToLower(s)
	for lvl, name := range map[string]Level{
		"fatal": Fatal, "error": Error, "warn": Warn,
		"info": Info, "debug": Debug, "trace": Trace,
	} {
		if lvl == s {
			current = name
			return
		}
	}
}

// Logger is a single severity's entry point, exposed as a package-level
// value (D, I, W, E, F below) so call sites read as log.D.F(...).
type Logger struct {
	level Level
}

func (l Logger) enabled() bool { return l.level <= current }

// F formats and prints a message, if this logger's level is enabled.
func (l Logger) F(format string, args ...any) {
	if !l.enabled() {
		return
	}
	emit(l.level, fmt.Sprintf(format, args...))
}

// Ln prints its arguments space-joined, if this logger's level is enabled.
func (l Logger) Ln(args ...any) {
	if !l.enabled() {
		return
	}
	emit(l.level, fmt.Sprintln(args...))
}

func emit(lvl Level, msg string) {
	c := colors[lvl]
	ts := time.Now().Format("15:04:05.000")
	out := os.Stderr
	if lvl == Fatal {
		c.Fprintf(out, "%s [%s] %s\n", ts, names[lvl], msg)
		os.Exit(1)
	}
	c.Fprintf(out, "%s [%s] %s\n", ts, names[lvl], msg)
}

var (
	// F is the fatal-level logger: logs then exits the process.
	F = Logger{level: Fatal}
	// E is the error-level logger.
	E = Logger{level: Error}
	// W is the warn-level logger.
	W = Logger{level: Warn}
	// I is the info-level logger.
	I = Logger{level: Info}
	// D is the debug-level logger.
	D = Logger{level: Debug}
	// T is the trace-level logger.
	T = Logger{level: Trace}
)
