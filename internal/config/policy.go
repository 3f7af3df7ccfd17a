package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadPolicy overlays the engine tunables found in path onto e. Keys absent
// from the file keep their current (environment or default) values. The file
// format follows the extension: yaml, toml or json.
//
//	caps:
//	  total: 1500
//	cooldowns:
//	  message: 45s
func LoadPolicy(path string, e *EngineConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	if err := v.Unmarshal(e); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	return nil
}
