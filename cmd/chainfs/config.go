package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	. "github.com/chainfs/chainfs/pkg/types"
)

const (
	envVarPrefix = "CHAINFS"
	appName      = "chainfs"
)

type Config struct {
	Image    string `envconfig:"CHAINFS_IMAGE"     yaml:"image"`
	LogLevel string `envconfig:"CHAINFS_LOG_LEVEL" yaml:"logLevel" default:"info"`
}

// LoadConfig reads the optional YAML config file named by
// CHAINFS_CONFIG_FILE and overlays environment variables on top.
func LoadConfig() (*Config, error) {
	var c Config

	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf(
				"unmarshaling config file `%s`: %w",
				configFile,
				err,
			)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("processing env vars: %w", err)
	}

	return &c, nil
}

// Geometry describes a volume to format.
type Geometry struct {
	Sectors           Sector `yaml:"sectors"`
	SectorsPerCluster Sector `yaml:"sectorsPerCluster"`
}

func LoadGeometry(path string) (*Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geometry file: %w", err)
	}
	var g Geometry
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf(
			"unmarshaling geometry file `%s`: %w",
			path,
			err,
		)
	}
	return &g, nil
}
