// Package locator discovers game save folders on the local machine.
//
// Heroic keeps one Wine prefix per game under a prefixes directory; Steam
// keeps one Proton prefix per app ID under steamapps/compatdata and the app
// ID is turned into a title through PCGamingWiki; custom games come straight
// from the config. Each discovered folder becomes a SaveEntry.
package locator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/savehaven/savehaven/internal/config"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/logger"
	"github.com/savehaven/savehaven/internal/remote"
	"github.com/savehaven/savehaven/internal/security"
)

// MissingPath marks an entry whose save folder could not be resolved
const MissingPath = ""

// SaveEntry is one game's save folder as found on disk
type SaveEntry struct {
	Name       string
	Launcher   string
	Path       string
	ModifiedAt float64 // epoch seconds, zero when the path is missing
}

// Missing reports whether the locator could not resolve a real path
func (e SaveEntry) Missing() bool {
	return e.Path == MissingPath
}

// TitleLookup resolves a Steam app ID to a game title
type TitleLookup interface {
	TitleForAppID(ctx context.Context, appID string) (title string, found bool, err error)
}

// Options selects what a Locator scans
type Options struct {
	Launchers      []string
	HeroicPrefixes string
	SteamRoot      string
	CustomGames    map[string]string
}

// OptionsFromConfig derives scan options from an expanded config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Launchers:      cfg.Launchers,
		HeroicPrefixes: cfg.HeroicPrefixes,
		SteamRoot:      SteamRoot(cfg.SteamInstall, cfg.SteamRoot),
		CustomGames:    cfg.CustomGames,
	}
}

// Locator enumerates save folders
type Locator struct {
	opts   Options
	lookup TitleLookup
	log    *logger.Logger

	// Misses collects the LocatorMiss errors of the last Scan
	Misses []error
}

func New(opts Options, lookup TitleLookup, log *logger.Logger) *Locator {
	if log == nil {
		log = logger.Nop()
	}
	return &Locator{opts: opts, lookup: lookup, log: log}
}

// Scan returns every save folder found, sorted by launcher then name. Custom
// games are scanned first and win name clashes. Problems with a single
// launcher or app ID are recorded in Misses and do not fail the scan.
func (l *Locator) Scan(ctx context.Context) ([]SaveEntry, error) {
	l.Misses = nil
	seen := make(map[string]bool)
	var entries []SaveEntry

	add := func(found []SaveEntry) {
		for _, e := range found {
			if seen[e.Name] {
				l.log.Warn().Str("game", e.Name).Str("launcher", e.Launcher).
					Msg("duplicate game name, keeping the first entry")
				continue
			}
			seen[e.Name] = true
			entries = append(entries, e)
		}
	}

	add(l.scanCustom())

	for _, launcher := range l.opts.Launchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch launcher {
		case config.LauncherHeroic:
			found, err := scanPrefixes(l.opts.HeroicPrefixes, config.LauncherHeroic)
			if err != nil {
				l.miss(saveerrors.NewLocatorMiss(config.LauncherHeroic).WithFilePath(l.opts.HeroicPrefixes))
				l.log.Warn().Err(err).Str("launcher", launcher).Msg("failed to scan prefixes")
				continue
			}
			add(found)
		case config.LauncherSteam:
			found, err := l.scanSteam(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				l.miss(saveerrors.NewLocatorMiss(config.LauncherSteam).WithFilePath(l.opts.SteamRoot))
				l.log.Warn().Err(err).Str("launcher", launcher).Msg("failed to scan compatdata")
				continue
			}
			add(found)
		default:
			l.log.Debug().Str("launcher", launcher).Msg("no save scanner for launcher")
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Launcher != entries[j].Launcher {
			return entries[i].Launcher < entries[j].Launcher
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Locate finds the save folder for one game, optionally limited to a
// launcher. It returns false when nothing matches.
func (l *Locator) Locate(ctx context.Context, name, launcherHint string) (SaveEntry, bool, error) {
	entries, err := l.Scan(ctx)
	if err != nil {
		return SaveEntry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name && (launcherHint == "" || e.Launcher == launcherHint) {
			return e, true, nil
		}
	}
	return SaveEntry{}, false, nil
}

func (l *Locator) miss(err error) {
	l.Misses = append(l.Misses, err)
}

func (l *Locator) scanCustom() []SaveEntry {
	names := make([]string, 0, len(l.opts.CustomGames))
	for name := range l.opts.CustomGames {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]SaveEntry, 0, len(names))
	for _, name := range names {
		entry := SaveEntry{Name: name, Launcher: config.LauncherCustom, Path: MissingPath}
		path := l.opts.CustomGames[name]

		if !security.IsSafeName(name) {
			l.miss(saveerrors.NewLocatorMiss(name).WithSuggestion("Game names must not contain path separators"))
			continue
		}

		if mod, err := ModifiedAt(path); err == nil {
			entry.Path = path
			entry.ModifiedAt = mod
		} else {
			l.miss(saveerrors.NewLocatorMiss(name).WithFilePath(path))
		}
		entries = append(entries, entry)
	}
	return entries
}

// scanPrefixes turns every subdirectory of dir into an entry named after it
func scanPrefixes(dir, launcher string) ([]SaveEntry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []SaveEntry
	for _, item := range items {
		if !item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, item.Name())
		mod, err := ModifiedAt(path)
		if err != nil {
			continue
		}
		entries = append(entries, SaveEntry{
			Name:       item.Name(),
			Launcher:   launcher,
			Path:       path,
			ModifiedAt: mod,
		})
	}
	return entries, nil
}

// ModifiedAt returns the newest modification time of the regular files under
// dir as epoch seconds, or the directory's own time when it holds no files.
func ModifiedAt(dir string) (float64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, &fs.PathError{Op: "scan", Path: dir, Err: errors.New("not a directory")}
	}

	newest := info.ModTime()
	foundFile := false

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees do not hide the rest of the save
			if path != dir && d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if !foundFile || fi.ModTime().After(newest) {
			newest = fi.ModTime()
			foundFile = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return remote.EpochSeconds(newest), nil
}
