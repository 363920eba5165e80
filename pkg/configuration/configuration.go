package configuration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the configuration file in use, or empty if there is none.
// KNOB_CONFIG overrides the default of knob/config.yaml under the user
// config dir.
var ConfigPath string

func init() {
	ConfigPath = defaultConfigPath()
}

func defaultConfigPath() string {
	if confPath := os.Getenv("KNOB_CONFIG"); confPath != "" {
		return confPath
	}

	ucd, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(ucd, "knob", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		// no file, no config; a missing file is not an error
		return ""
	}
	return path
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("KNOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadConfig decodes the YAML file at path on top of the defaults.
func ReadConfig(path string) (*Root, error) {
	config := EmptyRoot()
	config.Init()
	if path == "" {
		return config, config.MergeFlags()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := config.readYAML(data); err != nil {
		return nil, err
	}
	return config, config.MergeFlags()
}

func (c *Root) readYAML(data []byte) error {
	// validate with yaml.v3 first for line-numbered errors
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	c.v.SetConfigType("yaml")
	if err := c.v.MergeConfig(strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("failed to merge config file: %w", err)
	}
	return nil
}

// Load reads ConfigPath, if set, into the layered configuration.
func (c *Root) Load() error {
	if ConfigPath == "" {
		return nil
	}
	data, err := os.ReadFile(ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist (KNOB_CONFIG)", ConfigPath)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.readYAML(data)
}

// YAML renders the effective configuration.
func (c *Root) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
