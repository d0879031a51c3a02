// Package prompt defines how savehaven asks the operator questions.
//
// A Prompter answers single-choice questions (overwrite or revision, restore
// or upload). A Selector picks which games a batch should process. Auto and
// All never block and serve unattended runs; Line reads numbered answers from
// any reader and backs non-terminal sessions. The tui package provides the
// interactive huh versions.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrAborted is returned when the operator quits a prompt
var ErrAborted = errors.New("aborted by user")

// Option is one answer to a Question
type Option struct {
	Key   string
	Label string
}

// Question is a single-choice prompt. Default must be one of the option keys.
type Question struct {
	Title       string
	Description string
	Options     []Option
	Default     string
}

// DefaultKey returns the default answer, or the first option when unset
func (q Question) DefaultKey() string {
	if q.Default != "" {
		return q.Default
	}
	if len(q.Options) > 0 {
		return q.Options[0].Key
	}
	return ""
}

func (q Question) hasKey(key string) bool {
	for _, o := range q.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// Prompter answers questions
type Prompter interface {
	Choose(ctx context.Context, q Question) (string, error)
}

// Auto answers every question with its default
type Auto struct{}

func (Auto) Choose(ctx context.Context, q Question) (string, error) {
	return q.DefaultKey(), nil
}

// Line asks questions as a numbered list and reads the answer from a line of
// input. An empty line picks the default.
type Line struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{in: bufio.NewReader(in), out: out}
}

func (l *Line) Choose(ctx context.Context, q Question) (string, error) {
	if len(q.Options) == 0 {
		return "", fmt.Errorf("question %q has no options", q.Title)
	}
	def := q.DefaultKey()

	fmt.Fprintln(l.out, q.Title)
	if q.Description != "" {
		fmt.Fprintln(l.out, q.Description)
	}
	for i, o := range q.Options {
		marker := ""
		if o.Key == def {
			marker = " (default)"
		}
		fmt.Fprintf(l.out, "  %d) %s%s\n", i+1, o.Label, marker)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(l.out, "> ")

		answer, err := l.readLine()
		if err != nil {
			return "", err
		}

		switch {
		case answer == "":
			return def, nil
		case answer == "q":
			return "", ErrAborted
		case q.hasKey(answer):
			return answer, nil
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(q.Options) {
			return q.Options[n-1].Key, nil
		}
		fmt.Fprintf(l.out, "Invalid choice %q, enter 1-%d\n", answer, len(q.Options))
	}
}

func (l *Line) readLine() (string, error) {
	line, err := l.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", ErrAborted
		}
	}
	return strings.TrimSpace(line), nil
}
