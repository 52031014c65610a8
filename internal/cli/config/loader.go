package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// maxUpwardSearchLevels limits how far up the directory tree the config
// file search goes.
const maxUpwardSearchLevels = 10

var configFileUsed string

// configExistsIn checks whether a traceline config file exists in dir.
func configExistsIn(dir string) string {
	for _, name := range []string{"traceline.yaml", "traceline.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigFile returns the config file to use: the explicit path if
// given, else the nearest traceline.yaml searching upward from the
// working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Load builds the config from defaults, the config file, TRACELINE_
// environment variables, and explicitly set flags, in rising precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	configFileUsed = ""

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"state_path":   DefaultStateFile,
		"output":       DefaultOutput,
		"verbose":      false,
		"strict":       false,
		"server.port":  DefaultPort,
		"server.watch": false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if found := findConfigFile(cfgFile); found != "" {
		if err := k.Load(file.Provider(found), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", found, err)
		}
		configFileUsed = found
	}

	// TRACELINE_STATE_PATH -> state_path, TRACELINE_SERVER__PORT -> server.port
	if err := k.Load(env.Provider("TRACELINE_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "TRACELINE_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// The CLI says --state for brevity; the config key is
			// state_path.
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// FileUsed returns the config file the last Load read, if any.
func FileUsed() string {
	return configFileUsed
}
