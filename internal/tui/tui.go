// Package tui provides the interactive prompts used when savehaven runs in a
// terminal: single-choice questions, game multi-select and launcher setup,
// all built on charmbracelet/huh.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/savehaven/savehaven/internal/prompt"
)

const maxListHeight = 20

// Prompter asks a prompt.Question with a huh select
type Prompter struct{}

func NewPrompter() *Prompter {
	return &Prompter{}
}

func (p *Prompter) Choose(ctx context.Context, q prompt.Question) (string, error) {
	if len(q.Options) == 0 {
		return "", fmt.Errorf("question %q has no options", q.Title)
	}

	value := q.DefaultKey()
	options := make([]huh.Option[string], 0, len(q.Options))
	for _, o := range q.Options {
		options = append(options, huh.NewOption(o.Label, o.Key))
	}

	form := ApplyTheme(huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(q.Title).
				Description(q.Description).
				Options(options...).
				Value(&value),
		),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return "", mapAbort(err)
	}
	return value, nil
}

// Selector picks games with a filterable huh multi-select. Every item
// starts selected.
type Selector struct{}

func NewSelector() *Selector {
	return &Selector{}
}

func (s *Selector) Select(ctx context.Context, title string, items []string) ([]int, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var selected []int
	options := make([]huh.Option[int], 0, len(items))
	for i, item := range items {
		options = append(options, huh.NewOption(item, i).Selected(true))
	}

	form := ApplyTheme(huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[int]().
				Title(title).
				Description("Space to toggle, Enter to confirm, / to filter").
				Options(options...).
				Filterable(true).
				Height(listHeight(len(items))).
				Value(&selected),
		),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return nil, mapAbort(err)
	}
	return prompt.SortIndexes(selected), nil
}

// Confirm shows a yes/no dialog
func Confirm(ctx context.Context, title, description string) (bool, error) {
	var confirm bool

	form := ApplyTheme(huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("Cancel").
				Value(&confirm),
		),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return false, mapAbort(err)
	}
	return confirm, nil
}

// LauncherChoice is the result of the launcher setup form
type LauncherChoice struct {
	Launchers    []string
	SteamInstall string
}

// LaunchersForm asks which launchers to scan and, when Steam is picked, how
// Steam is installed.
func LaunchersForm(ctx context.Context, known, current []string, installs []string, steamInstall, steam string) (LauncherChoice, error) {
	choice := LauncherChoice{Launchers: current, SteamInstall: steamInstall}

	enabled := make(map[string]bool, len(current))
	for _, l := range current {
		enabled[l] = true
	}
	options := make([]huh.Option[string], 0, len(known))
	for _, l := range known {
		options = append(options, huh.NewOption(l, l).Selected(enabled[l]))
	}

	installOpts := make([]huh.Option[string], 0, len(installs))
	for _, i := range installs {
		installOpts = append(installOpts, huh.NewOption(i, i))
	}

	form := ApplyTheme(huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select launchers to scan").
				Description("Space to toggle, Enter to confirm").
				Options(options...).
				Value(&choice.Launchers),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How is Steam installed?").
				Options(installOpts...).
				Value(&choice.SteamInstall),
		).WithHideFunc(func() bool {
			return !contains(choice.Launchers, steam)
		}),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return LauncherChoice{}, mapAbort(err)
	}
	return choice, nil
}

func listHeight(n int) int {
	// title, description and filter line
	h := n + 3
	if h > maxListHeight {
		return maxListHeight
	}
	return h
}

func mapAbort(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return prompt.ErrAborted
	}
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
