package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, []string{LauncherHeroic}, cfg.Launchers)
	assert.Equal(t, SteamDistro, cfg.SteamInstall)
	assert.Equal(t, "SaveHaven", cfg.Cloud.Root)
	assert.NotEmpty(t, cfg.BackupDir)
	assert.NotEmpty(t, cfg.ManifestPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Cloud.Root, cfg.Cloud.Root)
	assert.NotNil(t, cfg.CustomGames)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Launchers = []string{LauncherSteam, LauncherHeroic}
	cfg.SteamInstall = SteamFlatpak
	cfg.CustomGames["Celeste"] = "/saves/celeste"
	cfg.Cloud.Provider = ProviderS3
	cfg.Cloud.Bucket = "my-saves"
	cfg.Cloud.AccessKeyID = "should-not-persist"

	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should-not-persist")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Launchers, loaded.Launchers)
	assert.Equal(t, SteamFlatpak, loaded.SteamInstall)
	assert.Equal(t, "/saves/celeste", loaded.CustomGames["Celeste"])
	assert.Equal(t, "my-saves", loaded.Cloud.Bucket)
	assert.Empty(t, loaded.Cloud.AccessKeyID)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("launchers: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, saveerrors.ConfigError, saveerrors.DetectErrorType(err))
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("SAVEHAVEN_S3_ACCESS_KEY_ID", "AKIDTEST")
	t.Setenv("SAVEHAVEN_S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("SAVEHAVEN_S3_BUCKET", "env-bucket")

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Cloud.Bucket = "file-bucket"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AKIDTEST", loaded.Cloud.AccessKeyID)
	assert.Equal(t, "secret", loaded.Cloud.SecretAccessKey)
	assert.Equal(t, "env-bucket", loaded.Cloud.Bucket)
	assert.Equal(t, "SaveHaven", loaded.Cloud.Root)
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepForever = true

	require.NoError(t, cfg.Apply(Overrides{AutoOverwrite: true}))
	assert.True(t, cfg.AutoOverwrite)
	assert.True(t, cfg.KeepForever, "zero-valued overrides must not clear settings")

	require.NoError(t, cfg.Apply(Overrides{BackupDir: "/elsewhere"}))
	assert.Equal(t, "/elsewhere", cfg.BackupDir)
}

func TestExpandPaths(t *testing.T) {
	cfg := &Config{
		BackupDir:     "~/backups",
		EncryptionKey: "~/.test.key",
		CustomGames:   map[string]string{"Hades": "~/saves/hades"},
	}

	require.NoError(t, cfg.ExpandPaths())

	homeDir, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(homeDir, "backups"), cfg.BackupDir)
	assert.Equal(t, filepath.Join(homeDir, ".test.key"), cfg.EncryptionKey)
	assert.Equal(t, filepath.Join(homeDir, "saves", "hades"), cfg.CustomGames["Hades"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown launcher", func(c *Config) { c.Launchers = []string{"Origin"} }, true},
		{"unknown steam install", func(c *Config) { c.SteamInstall = "appimage" }, true},
		{"s3 without bucket", func(c *Config) { c.Cloud.Provider = ProviderS3 }, true},
		{"s3 with bucket", func(c *Config) { c.Cloud.Provider = ProviderS3; c.Cloud.Bucket = "b" }, false},
		{"dir without path", func(c *Config) { c.Cloud.Dir = "" }, true},
		{"unknown provider", func(c *Config) { c.Cloud.Provider = "ftp" }, true},
		{"empty root", func(c *Config) { c.Cloud.Root = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasLauncher(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.HasLauncher(LauncherHeroic))
	assert.False(t, cfg.HasLauncher(LauncherSteam))
}
