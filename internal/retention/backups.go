package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const backupLayout = "20060102-150405"

// LocalBackup is a save folder moved aside before a restore
type LocalBackup struct {
	Game    string
	Path    string
	Created time.Time
}

// backupTime reads the timestamp out of a <game>-YYYYMMDD-HHMMSS[-n] name.
// Folder mtimes survive the move aside, so the name is the only record of
// when the backup was made.
func backupTime(game, name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, game+"-")
	if !ok || len(rest) < len(backupLayout) {
		return time.Time{}, false
	}
	if len(rest) > len(backupLayout) && rest[len(backupLayout)] != '-' {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(backupLayout, rest[:len(backupLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// BackupRotator prunes the per-game backups under a backup directory
type BackupRotator struct {
	backupDir string
	clock     clockwork.Clock
}

func NewBackupRotator(backupDir string, clock clockwork.Clock) *BackupRotator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BackupRotator{backupDir: backupDir, clock: clock}
}

// Backups lists every backup, newest first. Hidden entries such as the
// recovery state directory are ignored.
func (br *BackupRotator) Backups() ([]LocalBackup, error) {
	games, err := os.ReadDir(br.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var backups []LocalBackup
	for _, g := range games {
		if !g.IsDir() || strings.HasPrefix(g.Name(), ".") {
			continue
		}

		gameDir := filepath.Join(br.backupDir, g.Name())
		entries, err := os.ReadDir(gameDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			created, ok := backupTime(g.Name(), e.Name())
			if !ok {
				continue
			}
			backups = append(backups, LocalBackup{
				Game:    g.Name(),
				Path:    filepath.Join(gameDir, e.Name()),
				Created: created,
			})
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Created.Equal(backups[j].Created) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// RotateByCount keeps the newest keep backups of each game. Paths in protect
// (backups with a pending recovery) are never removed.
func (br *BackupRotator) RotateByCount(keep int, protect map[string]bool) (int, error) {
	backups, err := br.Backups()
	if err != nil {
		return 0, err
	}

	perGame := make(map[string]int)
	deleted := 0
	for _, b := range backups {
		perGame[b.Game]++
		if perGame[b.Game] <= keep || protect[b.Path] {
			continue
		}
		if err := os.RemoveAll(b.Path); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

// RotateByAge removes backups older than maxAge, except protected ones
func (br *BackupRotator) RotateByAge(maxAge time.Duration, protect map[string]bool) (int, error) {
	backups, err := br.Backups()
	if err != nil {
		return 0, err
	}

	cutoff := br.clock.Now().Add(-maxAge)
	deleted := 0
	for _, b := range backups {
		if !b.Created.Before(cutoff) || protect[b.Path] {
			continue
		}
		if err := os.RemoveAll(b.Path); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Age renders how long ago a backup was made
func (br *BackupRotator) Age(b LocalBackup) string {
	return FormatDuration(br.clock.Since(b.Created))
}

func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%d min", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	if days < 30 {
		return fmt.Sprintf("%d days", days)
	}
	months := days / 30
	if months == 1 {
		return "1 month"
	}
	if months < 12 {
		return fmt.Sprintf("%d months", months)
	}
	years := months / 12
	if years == 1 {
		return "1 year"
	}
	return fmt.Sprintf("%d years", years)
}
