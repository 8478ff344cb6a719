// config.go holds the .chainwork config types and resolution (load + merge
// over defaults).
package chaincli

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// localUserID identifies the single local operator in CLI mode; sessions and
// auth stay external to this module.
const localUserID = "00000000-0000-0000-0000-000000000001"

// localConfig holds optional values from .chainwork/config.yaml. Flags
// override config, config overrides defaults.
type localConfig struct {
	DB        string `yaml:"db"`
	UserID    string `yaml:"user_id"`
	ListLimit int    `yaml:"list_limit"`
	Verbose   bool   `yaml:"verbose"`
}

func defaultConfig() localConfig {
	return localConfig{
		DB:        filepath.Join(".chainwork", "chainwork.db"),
		UserID:    localUserID,
		ListLimit: 50,
	}
}

// loadLocalConfig tries ./.chainwork/config.yaml then ~/.chainwork/config.yaml.
// If neither file exists it returns the zero config.
func loadLocalConfig() (localConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return localConfig{}, err
	}
	try := []string{
		filepath.Join(cwd, ".chainwork", "config.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		try = append(try, filepath.Join(home, ".chainwork", "config.yaml"))
	}
	for _, p := range try {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return localConfig{}, err
		}
		var cfg localConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return localConfig{}, fmt.Errorf("%s: %w", p, err)
		}
		return cfg, nil
	}
	return localConfig{}, nil
}

// resolveConfig layers the file config over the built-in defaults. Non-zero
// file values win; gaps fall back to the defaults.
func resolveConfig(fileCfg localConfig) (localConfig, error) {
	final := defaultConfig()
	if err := mergo.Merge(&final, fileCfg, mergo.WithOverride); err != nil {
		return localConfig{}, err
	}
	return final, nil
}
