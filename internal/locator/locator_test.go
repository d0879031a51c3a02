package locator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/savehaven/savehaven/internal/config"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/remote"
)

type stubLookup map[string]string

func (s stubLookup) TitleForAppID(ctx context.Context, appID string) (string, bool, error) {
	if appID == "999" {
		return "", false, errors.New("network down")
	}
	title, ok := s[appID]
	return title, ok, nil
}

func mkSave(t *testing.T, dir string, files map[string]time.Time) {
	t.Helper()
	for name, mod := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
}

func TestModifiedAtNewestFile(t *testing.T) {
	dir := t.TempDir()
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mkSave(t, dir, map[string]time.Time{
		"a.sav":             old,
		"deep/nested/b.sav": newest,
	})
	// Directory times are ignored when files exist
	future := newest.Add(24 * time.Hour)
	os.Chtimes(dir, future, future)

	got, err := ModifiedAt(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != remote.EpochSeconds(newest) {
		t.Errorf("Expected %v, got %v", remote.EpochSeconds(newest), got)
	}
}

func TestModifiedAtEmptyDir(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2022, 5, 5, 5, 5, 5, 0, time.UTC)
	os.Chtimes(dir, mod, mod)

	got, err := ModifiedAt(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != remote.EpochSeconds(mod) {
		t.Errorf("Expected directory mtime, got %v", got)
	}
}

func TestModifiedAtErrors(t *testing.T) {
	if _, err := ModifiedAt(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing dir")
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, []byte("x"), 0644)
	if _, err := ModifiedAt(file); err == nil {
		t.Error("Expected error for a file")
	}
}

func TestScanHeroicAndCustom(t *testing.T) {
	root := t.TempDir()
	prefixes := filepath.Join(root, "Prefixes")
	mod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mkSave(t, filepath.Join(prefixes, "Hades"), map[string]time.Time{"pfx/user.reg": mod})
	mkSave(t, filepath.Join(prefixes, "Tunic"), map[string]time.Time{"pfx/user.reg": mod})
	os.MkdirAll(filepath.Join(prefixes, ".hidden"), 0755)
	os.WriteFile(filepath.Join(prefixes, "notes.txt"), []byte("x"), 0644)

	custom := filepath.Join(root, "custom", "Celeste")
	mkSave(t, custom, map[string]time.Time{"0.celeste": mod})

	l := New(Options{
		Launchers:      []string{config.LauncherHeroic},
		HeroicPrefixes: prefixes,
		CustomGames: map[string]string{
			"Celeste": custom,
			"Tunic":   filepath.Join(root, "elsewhere"),
		},
	}, nil, nil)

	entries, err := l.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %+v", len(entries), entries)
	}

	// Custom sorts before Heroic, and the custom Tunic wins the clash
	if entries[0].Name != "Celeste" || entries[0].Launcher != config.LauncherCustom {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].Name != "Tunic" || !entries[1].Missing() || entries[1].ModifiedAt != 0 {
		t.Errorf("Expected missing custom Tunic, got %+v", entries[1])
	}
	if entries[2].Name != "Hades" || entries[2].Launcher != config.LauncherHeroic {
		t.Errorf("Unexpected Heroic entry: %+v", entries[2])
	}
	if entries[2].ModifiedAt != remote.EpochSeconds(mod) {
		t.Errorf("Unexpected Heroic mtime: %v", entries[2].ModifiedAt)
	}

	if len(l.Misses) != 1 || !saveerrors.IsLocatorMiss(l.Misses[0]) {
		t.Errorf("Expected one locator miss, got %v", l.Misses)
	}
}

func TestScanMissingPrefixesIsNotFatal(t *testing.T) {
	l := New(Options{
		Launchers:      []string{config.LauncherHeroic, config.LauncherGOG},
		HeroicPrefixes: filepath.Join(t.TempDir(), "nope"),
	}, nil, nil)

	entries, err := l.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
	if len(l.Misses) != 1 {
		t.Errorf("Expected one miss, got %d", len(l.Misses))
	}
}

func TestScanSteam(t *testing.T) {
	steamRoot := t.TempDir()
	compat := CompatDataDir(steamRoot)
	mod := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"0", "1145360", "620", "999", "123", "abc"} {
		mkSave(t, filepath.Join(compat, id), map[string]time.Time{"pfx/user.reg": mod})
	}

	lookup := stubLookup{"1145360": "Hades", "620": "Portal 2", "abc": "Nope"}
	l := New(Options{Launchers: []string{config.LauncherSteam}, SteamRoot: steamRoot}, lookup, nil)

	entries, err := l.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %+v", entries)
	}
	if entries[0].Name != "Hades" || entries[0].Path != filepath.Join(compat, "1145360") {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
	if entries[1].Name != "Portal 2" {
		t.Errorf("Unexpected entry: %+v", entries[1])
	}
	// The failed lookup (999) and the app unknown to the wiki (123) are misses
	if len(l.Misses) != 2 {
		t.Fatalf("Expected two misses, got %v", l.Misses)
	}
	var names []string
	for _, miss := range l.Misses {
		var se *saveerrors.SaveError
		if !errors.As(miss, &se) || !saveerrors.IsLocatorMiss(miss) {
			t.Fatalf("Expected a locator miss, got %v", miss)
		}
		names = append(names, se.Game)
	}
	if !strings.Contains(strings.Join(names, ","), "Steam app 123") {
		t.Errorf("unknown app id was not reported: %v", names)
	}
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	mkSave(t, filepath.Join(root, "Hades"), map[string]time.Time{"a": time.Now()})

	l := New(Options{Launchers: []string{config.LauncherHeroic}, HeroicPrefixes: root}, nil, nil)

	e, ok, err := l.Locate(context.Background(), "Hades", config.LauncherHeroic)
	if err != nil || !ok || e.Path != filepath.Join(root, "Hades") {
		t.Errorf("Locate failed: %+v %v %v", e, ok, err)
	}

	if _, ok, _ := l.Locate(context.Background(), "Hades", config.LauncherSteam); ok {
		t.Error("Launcher hint should filter entries")
	}
	if _, ok, _ := l.Locate(context.Background(), "Celeste", ""); ok {
		t.Error("Unknown game should not be found")
	}
}

func TestSteamRoot(t *testing.T) {
	if got := SteamRoot(config.SteamDistro, "/custom/steam"); got != "/custom/steam" {
		t.Errorf("Override should win, got %s", got)
	}

	tests := map[string]string{
		config.SteamDistro:  filepath.Join(".steam", "steam"),
		config.SteamFlatpak: filepath.Join("com.valvesoftware.Steam", ".steam", "steam"),
		config.SteamSnap:    filepath.Join("snap", "steam", "common", ".steam", "steam"),
	}
	for install, suffix := range tests {
		got := SteamRoot(install, "")
		if !strings.HasSuffix(got, suffix) {
			t.Errorf("SteamRoot(%s) = %s, want suffix %s", install, got, suffix)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	if got := cleanTitle(" Fate/Stay Night "); got != "Fate-Stay Night" {
		t.Errorf("Unexpected title: %q", got)
	}
}

const wikiPage = `<!DOCTYPE html><html><body>
<div id="content"><h1 class="article-title page-header">Hades</h1></div>
</body></html>`

func TestPCGWLookup(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Query().Get("appid") {
		case "1145360":
			fmt.Fprint(w, wikiPage)
		case "404":
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprint(w, "<html><body><p>No such AppID.</p></body></html>")
		}
	}))
	defer server.Close()

	p := NewPCGWLookup(server.URL)
	ctx := context.Background()

	title, found, err := p.TitleForAppID(ctx, "1145360")
	if err != nil || !found || title != "Hades" {
		t.Fatalf("Unexpected lookup result: %q %v %v", title, found, err)
	}

	// Cached
	p.TitleForAppID(ctx, "1145360")
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected a cached second lookup, got %d calls", calls)
	}

	if _, found, err := p.TitleForAppID(ctx, "42"); err != nil || found {
		t.Errorf("Expected not found for unknown app id, got %v %v", found, err)
	}
	if _, found, err := p.TitleForAppID(ctx, "404"); err != nil || found {
		t.Errorf("Expected not found on 404, got %v %v", found, err)
	}
}

func TestPCGWLookupServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, _, err := NewPCGWLookup(server.URL).TitleForAppID(context.Background(), "1"); err == nil {
		t.Error("Expected error on server failure")
	}
}

func TestParseTitleWithoutHeading(t *testing.T) {
	title, found, err := parseTitle("<html><body><h1>Other</h1></body></html>")
	if err != nil || found || title != "" {
		t.Errorf("Expected no title, got %q %v %v", title, found, err)
	}
}
