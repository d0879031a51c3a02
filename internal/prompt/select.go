package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Selector picks a subset of items and returns their indexes in ascending order
type Selector interface {
	Select(ctx context.Context, title string, items []string) ([]int, error)
}

// All selects every item
type All struct{}

func (All) Select(ctx context.Context, title string, items []string) ([]int, error) {
	idx := make([]int, len(items))
	for i := range items {
		idx[i] = i
	}
	return idx, nil
}

// ByName selects the items named on the command line. Exact matches win;
// otherwise a case-insensitive match is accepted. Unknown names are an error.
type ByName struct {
	Names []string
}

func (b ByName) Select(ctx context.Context, title string, items []string) ([]int, error) {
	picked := make(map[int]bool)
	var unknown []string

	for _, name := range b.Names {
		i := indexOf(items, name)
		if i < 0 {
			unknown = append(unknown, name)
			continue
		}
		picked[i] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown game(s): %s", strings.Join(unknown, ", "))
	}

	return sortedKeys(picked), nil
}

func indexOf(items []string, name string) int {
	for i, item := range items {
		if item == name {
			return i
		}
	}
	for i, item := range items {
		if strings.EqualFold(item, name) {
			return i
		}
	}
	return -1
}

// LineSelector prints a numbered list and reads a selection from a line of input
type LineSelector struct {
	line *Line
}

func NewLineSelector(l *Line) *LineSelector {
	return &LineSelector{line: l}
}

const selectionHelp = "Enter range (3-5) or indexes (1,3,5), q to quit and empty for all"

func (s *LineSelector) Select(ctx context.Context, title string, items []string) ([]int, error) {
	if len(items) == 0 {
		return nil, nil
	}

	fmt.Fprintln(s.line.out, title)
	for i, item := range items {
		fmt.Fprintf(s.line.out, "  %d) %s\n", i+1, item)
	}
	fmt.Fprintln(s.line.out, selectionHelp)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprint(s.line.out, "> ")

		answer, err := s.line.readLine()
		if err != nil {
			return nil, err
		}

		idx, err := ParseSelection(answer, len(items))
		if err == nil || errors.Is(err, ErrAborted) {
			return idx, err
		}
		fmt.Fprintln(s.line.out, err)
	}
}

// ParseSelection parses 1-based input such as "3-5", "1,3,5" or "2" into
// 0-based indexes. An empty input selects all n items and "q" aborts.
func ParseSelection(input string, n int) ([]int, error) {
	input = strings.TrimSpace(input)
	switch input {
	case "":
		return All{}.Select(context.Background(), "", make([]string, n))
	case "q", "Q":
		return nil, ErrAborted
	}

	picked := make(map[int]bool)
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		start, err := parseIndex(lo, n)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parseIndex(hi, n); err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		for i := start; i <= end; i++ {
			picked[i-1] = true
		}
	}

	if len(picked) == 0 {
		return nil, fmt.Errorf("nothing selected")
	}
	return sortedKeys(picked), nil
}

func parseIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("index %d out of range 1-%d", i, n)
	}
	return i, nil
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// SortIndexes returns idx sorted ascending without duplicates
func SortIndexes(idx []int) []int {
	m := make(map[int]bool, len(idx))
	for _, i := range idx {
		m[i] = true
	}
	return sortedKeys(m)
}
