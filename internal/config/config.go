package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
)

// Launcher names accepted in the launchers list.
const (
	LauncherSteam     = "Steam"
	LauncherHeroic    = "Heroic"
	LauncherLegendary = "Legendary"
	LauncherGOG       = "GOG Galaxy"
	LauncherCustom    = "Custom"
)

// Steam install types.
const (
	SteamDistro  = "distro"
	SteamFlatpak = "flatpak"
	SteamSnap    = "snap"
)

// Remote providers.
const (
	ProviderS3  = "s3"
	ProviderDir = "dir"
)

// KnownLaunchers lists every launcher the locator can scan, in menu order.
var KnownLaunchers = []string{LauncherSteam, LauncherHeroic, LauncherLegendary, LauncherGOG}

// SteamInstalls lists the supported Steam install types, in menu order.
var SteamInstalls = []string{SteamDistro, SteamFlatpak, SteamSnap}

type Config struct {
	Launchers      []string          `yaml:"launchers" mapstructure:"launchers"`
	SteamInstall   string            `yaml:"steam_install" mapstructure:"steam_install"`
	SteamRoot      string            `yaml:"steam_root,omitempty" mapstructure:"steam_root"`
	HeroicPrefixes string            `yaml:"heroic_prefixes" mapstructure:"heroic_prefixes"`
	CustomGames    map[string]string `yaml:"custom_games" mapstructure:"custom_games"`
	BackupDir      string            `yaml:"backup_dir" mapstructure:"backup_dir" env:"SAVEHAVEN_BACKUP_DIR"`
	ManifestPath   string            `yaml:"manifest_path" mapstructure:"manifest_path"`
	LogFile        string            `yaml:"log_file" mapstructure:"log_file"`
	Encrypt        bool              `yaml:"encrypt" mapstructure:"encrypt"`
	EncryptionKey  string            `yaml:"encryption_key" mapstructure:"encryption_key"`
	AutoOverwrite  bool              `yaml:"auto_overwrite" mapstructure:"auto_overwrite"`
	KeepForever    bool              `yaml:"keep_forever" mapstructure:"keep_forever"`
	Cloud          CloudConfig       `yaml:"cloud" mapstructure:"cloud"`
}

// CloudConfig selects and configures the remote store. Credentials are never
// written to disk and come from the environment only.
type CloudConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider" env:"SAVEHAVEN_PROVIDER"`
	Root            string `yaml:"root" mapstructure:"root"`
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket" env:"SAVEHAVEN_S3_BUCKET"`
	Region          string `yaml:"region,omitempty" mapstructure:"region" env:"SAVEHAVEN_S3_REGION"`
	Endpoint        string `yaml:"endpoint,omitempty" mapstructure:"endpoint" env:"SAVEHAVEN_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style,omitempty" mapstructure:"path_style" env:"SAVEHAVEN_S3_PATH_STYLE"`
	Dir             string `yaml:"dir,omitempty" mapstructure:"dir" env:"SAVEHAVEN_REMOTE_DIR"`
	AccessKeyID     string `yaml:"-" mapstructure:"-" env:"SAVEHAVEN_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" mapstructure:"-" env:"SAVEHAVEN_S3_SECRET_ACCESS_KEY"`
}

// Dir returns the savehaven configuration directory.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "savehaven")
	}
	home, _ := homedir.Dir()
	return filepath.Join(home, ".config", "savehaven")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Launchers:      []string{LauncherHeroic},
		SteamInstall:   SteamDistro,
		HeroicPrefixes: "~/Games/Heroic/Prefixes",
		CustomGames:    map[string]string{},
		BackupDir:      "~/savehaven-backups",
		ManifestPath:   filepath.Join(dir, "games.json"),
		LogFile:        filepath.Join(dir, "savehaven.log"),
		EncryptionKey:  filepath.Join(dir, "savehaven.key"),
		Cloud: CloudConfig{
			Provider: ProviderDir,
			Root:     "SaveHaven",
			Region:   "us-east-1",
			Dir:      "~/SaveHavenCloud",
		},
	}
}

// Load reads the config file at path on top of the defaults, then overlays
// environment variables. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, saveerrors.NewConfigError(path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, saveerrors.NewConfigError(path, err)
		}
		games, err := readCustomGames(path)
		if err != nil {
			return nil, saveerrors.NewConfigError("custom_games", err)
		}
		cfg.CustomGames = games
	} else if !os.IsNotExist(err) {
		return nil, saveerrors.NewConfigError(path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.CustomGames == nil {
		cfg.CustomGames = map[string]string{}
	}

	return cfg, nil
}

// readCustomGames reads custom_games straight from the YAML file. Viper
// lowercases map keys and game names are case-sensitive.
func readCustomGames(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		CustomGames map[string]string `yaml:"custom_games"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.CustomGames, nil
}

func (c *Config) applyEnv() error {
	overlay := &Config{}
	if err := env.Parse(overlay); err != nil {
		return saveerrors.NewConfigError("environment", fmt.Errorf("error getting env configs: %w", err))
	}
	if err := mergo.Merge(c, overlay, mergo.WithOverride); err != nil {
		return saveerrors.NewConfigError("environment", fmt.Errorf("error merging configs: %w", err))
	}
	return nil
}

// Overrides holds per-invocation settings from CLI flags. Only non-zero fields
// replace the loaded configuration.
type Overrides struct {
	AutoOverwrite bool
	KeepForever   bool
	BackupDir     string
}

// Apply merges flag overrides into the config.
func (c *Config) Apply(o Overrides) error {
	patch := &Config{
		AutoOverwrite: o.AutoOverwrite,
		KeepForever:   o.KeepForever,
		BackupDir:     o.BackupDir,
	}
	if err := mergo.Merge(c, patch, mergo.WithOverride); err != nil {
		return saveerrors.NewConfigError("flags", err)
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPaths resolves a leading ~ in every path setting.
func (c *Config) ExpandPaths() error {
	fields := []*string{
		&c.SteamRoot, &c.HeroicPrefixes, &c.BackupDir, &c.ManifestPath,
		&c.LogFile, &c.EncryptionKey, &c.Cloud.Dir,
	}
	for _, f := range fields {
		expanded, err := homedir.Expand(*f)
		if err != nil {
			return saveerrors.NewConfigError(*f, err)
		}
		*f = expanded
	}

	for name, path := range c.CustomGames {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return saveerrors.NewConfigError("custom_games."+name, err)
		}
		c.CustomGames[name] = expanded
	}
	return nil
}

// Validate checks enumerations and provider requirements.
func (c *Config) Validate() error {
	for _, l := range c.Launchers {
		if !slices.Contains(KnownLaunchers, l) {
			return saveerrors.NewConfigError("launchers", fmt.Errorf("unknown launcher %q", l))
		}
	}
	if !slices.Contains(SteamInstalls, c.SteamInstall) {
		return saveerrors.NewConfigError("steam_install", fmt.Errorf("unknown install type %q", c.SteamInstall))
	}
	if c.Cloud.Root == "" {
		return saveerrors.NewConfigError("cloud.root", fmt.Errorf("root folder name is empty"))
	}

	switch c.Cloud.Provider {
	case ProviderS3:
		if c.Cloud.Bucket == "" {
			return saveerrors.NewConfigError("cloud.bucket", fmt.Errorf("bucket is required for the s3 provider"))
		}
	case ProviderDir:
		if c.Cloud.Dir == "" {
			return saveerrors.NewConfigError("cloud.dir", fmt.Errorf("dir is required for the dir provider"))
		}
	default:
		return saveerrors.NewConfigError("cloud.provider", fmt.Errorf("unknown provider %q", c.Cloud.Provider))
	}

	return nil
}

// HasLauncher reports whether a launcher is enabled.
func (c *Config) HasLauncher(name string) bool {
	return slices.Contains(c.Launchers, name)
}
