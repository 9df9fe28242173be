// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package buildlog is the ambient logging surface for the rest of the
// module. The teacher has no structured logger: cmd/build-metadata/main.go
// prints via fmt.Printf/log.Printf gated on a verbose flag and an isCI
// check. This package keeps that texture in library form so internal/
// packages don't each reinvent the gate.
package buildlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level is the verbosity a message is logged at; a Logger only emits
// a message when its configured level is at or above the message's.
type Level int

const (
	Quiet Level = iota
	Normal
	Verbose
)

// Logger wraps a standard log.Logger with a verbosity gate, matching
// the teacher's "print unconditionally at normal verbosity, gate the
// chatty stuff behind --verbose" behavior (cmd/build-metadata/main.go's
// verboseOutput checks).
type Logger struct {
	level Level
	out   *log.Logger
	err   *log.Logger
}

// New builds a Logger writing Info/Warn to out and errors to errOut at
// the given level. Passing nil for either uses os.Stdout/os.Stderr.
func New(level Level, out, errOut io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Logger{
		level: level,
		out:   log.New(out, "", 0),
		err:   log.New(errOut, "", 0),
	}
}

// Infof prints unconditionally at Normal verbosity or above.
func (l *Logger) Infof(format string, args ...any) {
	if l.level < Normal {
		return
	}
	l.out.Printf(format, args...)
}

// Verbosef prints only when the logger is configured Verbose, the gate
// build-script warnings and job-queue chatter use (§4.I, §4.H).
func (l *Logger) Verbosef(format string, args ...any) {
	if l.level < Verbose {
		return
	}
	l.out.Printf(format, args...)
}

// Warnf always prints to the error stream, prefixed like the teacher's
// "Warning: ..." fallback branch.
func (l *Logger) Warnf(format string, args ...any) {
	l.err.Printf("warning: %s", fmt.Sprintf(format, args...))
}

// Errorf always prints to the error stream.
func (l *Logger) Errorf(format string, args ...any) {
	l.err.Printf("error: %s", fmt.Sprintf(format, args...))
}

// PkgTagf prints a build-script/job-queue line prefixed with
// "[<pkg> <ver>]" when verbosity is elevated (§4.H "Output ordering").
func (l *Logger) PkgTagf(pkg, ver, format string, args ...any) {
	if l.level < Verbose {
		return
	}
	l.out.Printf("[%s %s] %s", pkg, ver, fmt.Sprintf(format, args...))
}
