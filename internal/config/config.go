// Package config loads tool configuration through Viper, layering a
// bootstage.yaml file, BOOTSTAGE_* environment variables, and built-in
// defaults.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the knobs the boot rehearsal runs with.
type Config struct {
	// BlockSize is the logical block size assumed for disk images.
	BlockSize uint32 `mapstructure:"block_size"`

	// MemoryMiB sizes the simulated RAM arena handed to the firmware.
	MemoryMiB uint64 `mapstructure:"memory_mib"`

	// RuntimeTablePages is the size of the firmware table region that
	// survives the commit point.
	RuntimeTablePages uint64 `mapstructure:"runtime_table_pages"`

	// Formats is the image format detection order.
	Formats []string `mapstructure:"formats"`

	// Manifest is the boot manifest path looked up on the medium.
	Manifest string `mapstructure:"manifest"`
}

// LoadConfig loads configuration using Viper, searching the usual
// bootstage.yaml locations.
func LoadConfig() (*Config, error) {
	return loadConfig("")
}

// LoadConfigFile loads configuration from an explicit file path instead
// of the search paths. A missing file is an error here, unlike the
// search-path lookup.
func LoadConfigFile(path string) (*Config, error) {
	return loadConfig(path)
}

func loadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("bootstage")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.bootstage")
		viper.AddConfigPath("/etc/bootstage")
	}
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("block_size", 512)
	viper.SetDefault("memory_mib", 64)
	viper.SetDefault("runtime_table_pages", 2)
	viper.SetDefault("formats", []string{"pe32+", "elf64"})
	viper.SetDefault("manifest", "bootstage.yaml")

	// Allow environment variables
	viper.SetEnvPrefix("BOOTSTAGE")
	viper.AutomaticEnv()

	// Read config file if it exists. An explicit path that fails to read
	// surfaces as a plain file error, so only the search-path miss is
	// tolerated here.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the rehearsal cannot run with.
func (c *Config) Validate() error {
	if c.BlockSize == 0 || c.BlockSize%512 != 0 {
		return fmt.Errorf("block size %d is not a multiple of 512", c.BlockSize)
	}
	if c.MemoryMiB == 0 {
		return fmt.Errorf("memory size cannot be zero")
	}
	if c.RuntimeTablePages == 0 {
		return fmt.Errorf("runtime table size cannot be zero")
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("format detection order cannot be empty")
	}
	return nil
}

// MemoryBytes returns the configured arena size in bytes.
func (c *Config) MemoryBytes() uint64 {
	return c.MemoryMiB << 20
}
