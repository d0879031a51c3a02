package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/ui"
)

// setupHome points HOME and the config dir at a temp dir and returns the
// path of a config file that does not exist yet.
func setupHome(t *testing.T) (string, string) {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	color.NoColor = true

	return home, filepath.Join(home, "savehaven.yaml")
}

// writeConfig saves a config using only absolute paths under home
func writeConfig(t *testing.T, home, path string) {
	t.Helper()

	prefixes := filepath.Join(home, "Prefixes")
	if err := os.MkdirAll(prefixes, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.HeroicPrefixes = prefixes
	cfg.BackupDir = filepath.Join(home, "backups")
	cfg.ManifestPath = filepath.Join(home, "state", "games.json")
	cfg.LogFile = filepath.Join(home, "state", "savehaven.log")
	cfg.EncryptionKey = filepath.Join(home, "state", "savehaven.key")
	cfg.Cloud.Dir = filepath.Join(home, "cloud")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, verbose = "", false
	initEncrypt = false
	syncPersistent, syncOverwrite, syncYes, syncGames = false, false, false, nil

	var buf bytes.Buffer
	restore := ui.SetOutput(&buf)
	defer restore()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestInitCmd(t *testing.T) {
	home, path := setupHome(t)

	output, err := execute(t, "init", "--config", path)
	if err != nil {
		t.Fatalf("Init command failed: %v", err)
	}
	if !strings.Contains(output, "Created config") {
		t.Errorf("Expected 'Created config' in output, got:\n%s", output)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	output, err = execute(t, "init", "--config", path, "--encrypt")
	if err != nil {
		t.Fatalf("Init --encrypt failed: %v", err)
	}
	if !strings.Contains(output, "Config already exists") {
		t.Error("Expected 'Config already exists' in second run")
	}
	if !strings.Contains(output, "Generated encryption key") {
		t.Error("Expected 'Generated encryption key' in output")
	}

	keyPath := filepath.Join(home, ".config", "savehaven", "savehaven.key")
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		t.Errorf("key was not created at %s", keyPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Encrypt {
		t.Error("Expected encrypt to be switched on")
	}

	output, err = execute(t, "init", "--config", path, "--encrypt")
	if err != nil {
		t.Fatalf("Third init failed: %v", err)
	}
	if !strings.Contains(output, "Encryption key already exists") {
		t.Error("Expected the existing key to be kept")
	}
}

func TestAddRemoveCmd(t *testing.T) {
	home, path := setupHome(t)
	writeConfig(t, home, path)

	saves := filepath.Join(home, "saves", "Celeste")
	if err := os.MkdirAll(saves, 0755); err != nil {
		t.Fatal(err)
	}

	output, err := execute(t, "add", "Celeste", saves, "--config", path)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(output, "Added Celeste") {
		t.Errorf("Expected 'Added Celeste' in output, got:\n%s", output)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CustomGames["Celeste"] != saves {
		t.Errorf("CustomGames = %v, want Celeste -> %s", cfg.CustomGames, saves)
	}

	if _, err := execute(t, "remove", "Celeste", "--config", path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	cfg, err = config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.CustomGames["Celeste"]; ok {
		t.Error("Celeste is still configured after remove")
	}

	if _, err := execute(t, "remove", "Celeste", "--config", path); err == nil {
		t.Error("Expected an error removing an untracked game")
	}
}

func TestSyncCmd(t *testing.T) {
	home, path := setupHome(t)
	writeConfig(t, home, path)

	saves := filepath.Join(home, "saves", "Hollow Knight")
	if err := os.MkdirAll(saves, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(saves, "user1.dat"), []byte("geo: 1200"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "add", "Hollow Knight", saves, "--config", path); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	output, err := execute(t, "sync", "--yes", "--config", path)
	if err != nil {
		t.Fatalf("sync failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Uploaded: 1") {
		t.Errorf("Expected one upload, got:\n%s", output)
	}

	archive := filepath.Join(home, "cloud", "SaveHaven", "Custom", "Hollow Knight.zip")
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("archive not uploaded: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "state", "games.json")); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	output, err = execute(t, "sync", "--yes", "--config", path)
	if err != nil {
		t.Fatalf("second sync failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Uploaded: 0") || !strings.Contains(output, "Skipped:  1") {
		t.Errorf("Expected the second sync to skip, got:\n%s", output)
	}
	if !strings.Contains(output, "Hollow Knight: up to date") {
		t.Errorf("Expected the skip reason, got:\n%s", output)
	}
}

func TestSyncCmdReportsUnattendedConflict(t *testing.T) {
	home, path := setupHome(t)
	writeConfig(t, home, path)

	saves := filepath.Join(home, "saves", "Hollow Knight")
	if err := os.MkdirAll(saves, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(saves, "user1.dat"), []byte("geo: 1200"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "add", "Hollow Knight", saves, "--config", path); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := execute(t, "sync", "--yes", "--config", path); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// Adding again forgets the last upload, so the cloud copy is unconfirmed.
	if _, err := execute(t, "add", "Hollow Knight", saves, "--config", path); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	output, err := execute(t, "sync", "--yes", "--config", path)
	if err != nil {
		t.Fatalf("sync failed: %v\n%s", err, output)
	}

	if !strings.Contains(output, "Hollow Knight: conflict") {
		t.Errorf("Expected the conflict to be named, got:\n%s", output)
	}
	if !strings.Contains(output, "cloud copy") {
		t.Errorf("Expected a reason for the skip, got:\n%s", output)
	}
	if !strings.Contains(output, "Uploaded: 0") {
		t.Errorf("Expected nothing uploaded, got:\n%s", output)
	}
}

func TestConfigPathCmd(t *testing.T) {
	_, path := setupHome(t)

	output, err := execute(t, "config", "path", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(output) != path {
		t.Errorf("config path = %q, want %q", strings.TrimSpace(output), path)
	}
}
