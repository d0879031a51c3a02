// Package ui provides terminal output for savehaven: colored status lines,
// the batch progress bar, a spinner for single transfers and the end of
// batch summary.
package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
)

var out io.Writer = color.Output

var (
	Success = color.New(color.FgGreen).SprintFunc()
	Error   = color.New(color.FgRed).SprintFunc()
	Warning = color.New(color.FgYellow).SprintFunc()
	Info    = color.New(color.FgCyan).SprintFunc()
	Bold    = color.New(color.Bold).SprintFunc()
	Faint   = color.New(color.Faint).SprintFunc()

	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconInfo    = "*"
	IconSkip    = "-"
)

// SetOutput redirects all printers and returns a func restoring the previous writer
func SetOutput(w io.Writer) func() {
	prev := out
	out = w
	return func() { out = prev }
}

// Output returns the current writer
func Output() io.Writer {
	return out
}

func PrintSuccess(format string, a ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Success(IconSuccess), fmt.Sprintf(format, a...))
}

func PrintError(format string, a ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Error(IconError), fmt.Sprintf(format, a...))
}

func PrintWarning(format string, a ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Warning(IconWarning), fmt.Sprintf(format, a...))
}

func PrintInfo(format string, a ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Info(IconInfo), fmt.Sprintf(format, a...))
}

func PrintSkip(format string, a ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Faint(IconSkip), Faint(fmt.Sprintf(format, a...)))
}

func PrintHeader(text string) {
	fmt.Fprintln(out, Bold(text))
}

func PrintDivider() {
	fmt.Fprintln(out, Faint(strings.Repeat("━", 50)))
}

// PrintSaveError prints err with the suggestion and alternative attached to
// a SaveError, if any.
func PrintSaveError(err error) {
	var se *saveerrors.SaveError
	if !errors.As(err, &se) {
		PrintError("%v", err)
		return
	}

	PrintError("%v", se)
	if se.FilePath != "" {
		fmt.Fprintf(out, "  %s %s\n", Bold("Location:"), se.FilePath)
	}
	if se.Suggestion != "" {
		fmt.Fprintf(out, "  %s %s\n", Bold("Solution:"), se.Suggestion)
	}
	if se.Alternative != "" {
		fmt.Fprintf(out, "  %s %s\n", Bold("Alternative:"), se.Alternative)
	}
}

// PrintSummaryTable prints key/value rows in the given order
func PrintSummaryTable(keys []string, values map[string]string) {
	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}

	PrintDivider()
	for _, k := range keys {
		fmt.Fprintf(out, "  %s:%s %s\n", Bold(k), strings.Repeat(" ", width-len(k)), values[k])
	}
	PrintDivider()
}

// NewBatchBar returns a progress bar over the games of a batch
func NewBatchBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Spinner marks a single long-running step on one line
type Spinner struct {
	writer  io.Writer
	message string
	active  bool
}

func NewSpinner(message string) *Spinner {
	return &Spinner{writer: out, message: message}
}

func (s *Spinner) Start() {
	s.active = true
	fmt.Fprintf(s.writer, "  %s %s...", Info("⏳"), s.message)
}

func (s *Spinner) Stop() {
	if s.active {
		fmt.Fprintf(s.writer, "\r  %s %s\n", Success(IconSuccess), s.message)
		s.active = false
	}
}

func (s *Spinner) Fail() {
	if s.active {
		fmt.Fprintf(s.writer, "\r  %s %s\n", Error(IconError), s.message)
		s.active = false
	}
}

func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if s.active {
		fmt.Fprintf(s.writer, "\r  %s %s...", Info("⏳"), s.message)
	}
}

// FormatEpoch renders a watermark or cloud timestamp in local time. Zero
// means never.
func FormatEpoch(ts float64) string {
	if ts == 0 {
		return "never"
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).Local().Format("2006-01-02 15:04:05")
}
