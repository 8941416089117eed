// Package config assembles the runtime configuration from defaults, a
// YAML file, CARDBOX_* environment variables and command-line flags,
// in that order of precedence. The resulting value is threaded
// explicitly into every component; nothing reads paths from globals.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "CARDBOX_"

// Config is the full runtime configuration.
type Config struct {
	StorePath string `koanf:"store_path"`
	CachePath string `koanf:"cache_path"`
	MediaDir  string `koanf:"media_dir"`
	Listen    string `koanf:"listen"`
	GitSync   bool   `koanf:"git_sync"`
	GitRemote string `koanf:"git_remote"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StorePath: "cards",
		CachePath: "cardbox.db",
		MediaDir:  "media",
		Listen:    ":8088",
	}
}

// Flags returns the flag set understood by Load. Call Parse on it
// before passing it in.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cardbox", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("store_path", "", "root directory of the card store")
	fs.String("cache_path", "", "path to the sqlite cache index")
	fs.String("media_dir", "", "directory for cached audio files")
	fs.String("listen", "", "HTTP listen address")
	fs.Bool("git_sync", false, "commit and push the store at session boundaries")
	fs.String("git_remote", "", "git remote URL for the store")
	return fs
}

// Load layers file, environment and flags over the defaults. A config
// file is only required when one was named explicitly.
func Load(flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if _, err := os.Stat("cardbox.yaml"); err == nil {
		if err := k.Load(file.Provider("cardbox.yaml"), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("failed to load cardbox.yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return cfg, fmt.Errorf("failed to load environment config: %w", err)
	}

	// Only flags the user actually set may override file and env.
	flagCB := func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed || f.Name == "config" {
			return "", nil
		}
		return f.Name, posflag.FlagVal(flags, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagCB), nil); err != nil {
		return cfg, fmt.Errorf("failed to load flag config: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
