// Package formats wires the executable image parsers into the pluggable
// format capability the stage loader validates against. Detection walks
// the registered formats in order; the first one whose header check
// passes interprets the image.
package formats

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
)

// Registry holds image formats in detection order.
type Registry struct {
	formats []interfaces.ImageFormat
}

// NewRegistry creates a registry with the given formats, detected in
// argument order.
func NewRegistry(formats ...interfaces.ImageFormat) *Registry {
	r := &Registry{}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// DefaultRegistry returns the built-in formats in their conventional
// order: PE32+ first, then ELF64.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPE32Plus(), NewELF64())
}

// NewRegistryFromNames builds a registry from format names, preserving
// the given order. Unknown names are an error.
func NewRegistryFromNames(names []string) (*Registry, error) {
	r := &Registry{}
	for _, name := range names {
		switch name {
		case PE32PlusName:
			r.Register(NewPE32Plus())
		case ELF64Name:
			r.Register(NewELF64())
		default:
			return nil, fmt.Errorf("unknown image format %q", name)
		}
	}
	if len(r.formats) == 0 {
		return nil, fmt.Errorf("no image formats configured")
	}
	return r, nil
}

// Register appends a format to the detection order.
func (r *Registry) Register(format interfaces.ImageFormat) {
	if format == nil {
		return
	}
	r.formats = append(r.formats, format)
}

// Detect returns the first registered format that recognizes the buffer.
func (r *Registry) Detect(data []byte) (interfaces.ImageFormat, bool) {
	for _, f := range r.formats {
		if f.IsValidHeader(data) {
			return f, true
		}
	}
	return nil, false
}

// ByName returns the registered format with the given name.
func (r *Registry) ByName(name string) (interfaces.ImageFormat, bool) {
	for _, f := range r.formats {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Names returns the registered format names in detection order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		names = append(names, f.Name())
	}
	return names
}
