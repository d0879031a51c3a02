package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/savehaven/savehaven/internal/config"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
)

// SteamRoot returns the Steam data directory for an install type. A non-empty
// override wins.
func SteamRoot(install, override string) string {
	if override != "" {
		return override
	}

	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	switch install {
	case config.SteamFlatpak:
		return filepath.Join(home, ".var", "app", "com.valvesoftware.Steam", ".steam", "steam")
	case config.SteamSnap:
		return filepath.Join(home, "snap", "steam", "common", ".steam", "steam")
	default:
		return filepath.Join(home, ".steam", "steam")
	}
}

// CompatDataDir returns the directory holding one Proton prefix per app ID
func CompatDataDir(steamRoot string) string {
	return filepath.Join(steamRoot, "steamapps", "compatdata")
}

func (l *Locator) scanSteam(ctx context.Context) ([]SaveEntry, error) {
	dir := CompatDataDir(l.opts.SteamRoot)
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []SaveEntry
	for _, item := range items {
		appID := item.Name()
		if !item.IsDir() || !isAppID(appID) {
			continue
		}
		if l.lookup == nil {
			l.miss(saveerrors.NewLocatorMiss(appID).WithSuggestion("No title lookup configured for Steam app IDs"))
			continue
		}

		title, found, err := l.lookup.TitleForAppID(ctx, appID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.log.Warn().Err(err).Str("appid", appID).Msg("title lookup failed")
			l.miss(saveerrors.NewLocatorMiss("Steam app " + appID).WithSuggestion("Check your network connection and run sync again"))
			continue
		}
		if !found {
			l.log.Warn().Str("appid", appID).Msg("unknown app id")
			l.miss(saveerrors.NewLocatorMiss("Steam app " + appID).
				WithSuggestion(fmt.Sprintf("PCGamingWiki does not know app %s. Add the save folder with: savehaven add <game> %s", appID, filepath.Join(dir, appID))))
			continue
		}

		path := filepath.Join(dir, appID)
		mod, err := ModifiedAt(path)
		if err != nil {
			continue
		}
		entries = append(entries, SaveEntry{
			Name:       cleanTitle(title),
			Launcher:   config.LauncherSteam,
			Path:       path,
			ModifiedAt: mod,
		})
	}
	return entries, nil
}

// isAppID rejects "0" (the shared prefix) and non-numeric folders
func isAppID(name string) bool {
	n, err := strconv.ParseUint(name, 10, 64)
	return err == nil && n > 0
}

// cleanTitle makes a wiki title usable as a single path component
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	return strings.NewReplacer("/", "-", `\`, "-").Replace(title)
}
