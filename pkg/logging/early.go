package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// EarlyLog reports problems that happen before the structured logger is
// configured, such as an unreadable config file. Lines go to stderr as
// "<command>: <level>: <message>".
type EarlyLog struct {
	w       io.Writer
	command string
}

func NewEarlyLog(command string) *EarlyLog {
	return NewEarlyLogTo(os.Stderr, command)
}

func NewEarlyLogTo(w io.Writer, command string) *EarlyLog {
	return &EarlyLog{w: w, command: command}
}

func (l *EarlyLog) Error(format string, args ...interface{}) {
	l.print("error", format, args...)
}

func (l *EarlyLog) Warn(format string, args ...interface{}) {
	l.print("warning", format, args...)
}

func (l *EarlyLog) print(level, format string, args ...interface{}) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintf(l.w, "%s: %s: %s\n", l.command, level, msg)
}
