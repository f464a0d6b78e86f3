package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears the package-global Viper state before and after a
// test so runs do not leak settings into each other.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, uint32(512), cfg.BlockSize)
	assert.Equal(t, uint64(64), cfg.MemoryMiB)
	assert.Equal(t, uint64(2), cfg.RuntimeTablePages)
	assert.Equal(t, []string{"pe32+", "elf64"}, cfg.Formats)
	assert.Equal(t, "bootstage.yaml", cfg.Manifest)
	assert.Equal(t, uint64(64)<<20, cfg.MemoryBytes())
}

func TestLoadConfigFile(t *testing.T) {
	t.Run("OverridesDefaults", func(t *testing.T) {
		resetViper(t)

		path := filepath.Join(t.TempDir(), "bootstage.yaml")
		yaml := "block_size: 4096\nmemory_mib: 128\nformats:\n  - elf64\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

		cfg, err := LoadConfigFile(path)
		require.NoError(t, err)

		assert.Equal(t, uint32(4096), cfg.BlockSize)
		assert.Equal(t, uint64(128), cfg.MemoryMiB)
		assert.Equal(t, []string{"elf64"}, cfg.Formats)

		// Knobs the file does not mention keep their defaults.
		assert.Equal(t, uint64(2), cfg.RuntimeTablePages)
		assert.Equal(t, "bootstage.yaml", cfg.Manifest)
	})

	t.Run("MissingFile", func(t *testing.T) {
		resetViper(t)

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("InvalidKnobs", func(t *testing.T) {
		resetViper(t)

		path := filepath.Join(t.TempDir(), "bootstage.yaml")
		require.NoError(t, os.WriteFile(path, []byte("block_size: 100\n"), 0o644))

		_, err := LoadConfigFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple of 512")
	})
}

func TestEnvironmentOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BOOTSTAGE_MEMORY_MIB", "256")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(256), cfg.MemoryMiB)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BlockSize:         512,
			MemoryMiB:         64,
			RuntimeTablePages: 2,
			Formats:           []string{"pe32+", "elf64"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"UnalignedBlockSize", func(c *Config) { c.BlockSize = 500 }, "multiple of 512"},
		{"ZeroBlockSize", func(c *Config) { c.BlockSize = 0 }, "multiple of 512"},
		{"ZeroMemory", func(c *Config) { c.MemoryMiB = 0 }, "memory size cannot be zero"},
		{"ZeroRuntimeTable", func(c *Config) { c.RuntimeTablePages = 0 }, "runtime table size cannot be zero"},
		{"NoFormats", func(c *Config) { c.Formats = nil }, "detection order cannot be empty"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
