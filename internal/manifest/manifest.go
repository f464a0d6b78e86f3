// Package manifest loads the boot manifest: the YAML file naming the
// kernel images a boot medium carries and the command line each one is
// handed at entry. The selected entry's cmdline is what the stage loader
// carries into the handoff record.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry describes one bootable image on the medium.
type Entry struct {
	// Name is the unique key used to select the entry.
	Name string `yaml:"name"`

	// Title is a human-readable label shown when listing entries.
	Title string `yaml:"title,omitempty"`

	// Image is the path of the kernel image on the boot medium.
	Image string `yaml:"image"`

	// Cmdline is the command line carried to the kernel through the
	// handoff record.
	Cmdline string `yaml:"cmdline,omitempty"`

	// Format optionally pins the image format ("pe32+", "elf64")
	// instead of relying on header detection.
	Format string `yaml:"format,omitempty"`
}

// Manifest is the parsed boot manifest.
type Manifest struct {
	// Default names the entry booted when none is requested.
	Default string `yaml:"default,omitempty"`

	// Entries lists the bootable images in menu order.
	Entries []Entry `yaml:"entries"`
}

// Load reads and validates a manifest from a YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the manifest invariants: at least one entry, a unique
// name and an image path per entry, and a default that resolves to an
// entry when set.
func (m *Manifest) Validate() error {
	if len(m.Entries) == 0 {
		return fmt.Errorf("manifest has no entries")
	}

	seen := make(map[string]struct{}, len(m.Entries))
	for i, entry := range m.Entries {
		if entry.Name == "" {
			return fmt.Errorf("entry %d has no name", i)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("duplicate entry name %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}

		if entry.Image == "" {
			return fmt.Errorf("entry %q has no image path", entry.Name)
		}
	}

	if m.Default != "" {
		if _, ok := seen[m.Default]; !ok {
			return fmt.Errorf("default entry %q does not exist", m.Default)
		}
	}

	return nil
}

// FindEntry returns the entry with the given name.
func (m *Manifest) FindEntry(name string) (Entry, bool) {
	for _, entry := range m.Entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// DefaultEntry returns the entry named by Default, falling back to the
// first entry when no default is set.
func (m *Manifest) DefaultEntry() (Entry, bool) {
	if m.Default != "" {
		return m.FindEntry(m.Default)
	}
	if len(m.Entries) == 0 {
		return Entry{}, false
	}
	return m.Entries[0], true
}

// Label returns the entry's title when present, otherwise its name.
func (e Entry) Label() string {
	if e.Title != "" {
		return e.Title
	}
	return e.Name
}
