// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders declarch's human-facing terminal output: section
// headers, labels, and status lines, colored when the output is a
// terminal and the user hasn't opted out.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Cyan   = color.New(color.FgCyan)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.Faint)
	Bold   = color.New(color.Bold)
)

// InitColors enables or disables color globally based on --no-color, the
// NO_COLOR env var, and whether stdout is a terminal.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(title string) {
	_, _ = Bold.Println(title)
}

// SubHeader prints a secondary section title, in the same bold style as
// Header.
func SubHeader(title string) {
	_, _ = Bold.Println(title)
}

// Label returns s styled as a field label (used with fmt.Printf("%s value", ui.Label("Name:"))).
func Label(s string) string {
	return Bold.Sprint(s)
}

// DimText returns s styled as de-emphasized text (paths, hints).
func DimText(s string) string {
	return Dim.Sprint(s)
}

// CountText renders an integer count, dimmed when zero.
func CountText(n int) string {
	if n == 0 {
		return Dim.Sprint("0")
	}
	return fmt.Sprintf("%d", n)
}

func Info(msg string)                       { fmt.Fprintln(os.Stderr, Cyan.Sprint("info: ")+msg) }
func Infof(format string, args ...any)       { Info(fmt.Sprintf(format, args...)) }
func Success(msg string)                     { fmt.Fprintln(os.Stderr, Green.Sprint("✓ ")+msg) }
func Successf(format string, args ...any)    { Success(fmt.Sprintf(format, args...)) }
func Warning(msg string)                     { fmt.Fprintln(os.Stderr, Yellow.Sprint("warning: ")+msg) }
func Warningf(format string, args ...any)    { Warning(fmt.Sprintf(format, args...)) }
func ErrorLine(msg string)                   { fmt.Fprintln(os.Stderr, Red.Sprint("error: ")+msg) }
func ErrorLinef(format string, args ...any)  { ErrorLine(fmt.Sprintf(format, args...)) }
