// Package fsmedium exposes any fs.FS as a boot medium: a host directory
// during rehearsals, an embedded filesystem, or a fstest.MapFS in tests.
package fsmedium

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
)

// Medium serves boot images out of a filesystem tree.
type Medium struct {
	fsys fs.FS
	name string
}

// Compile-time checks to ensure Medium implements the medium interfaces
var (
	_ interfaces.BootMedium   = (*Medium)(nil)
	_ interfaces.MediumLister = (*Medium)(nil)
)

// New creates a medium over the given filesystem. The name appears in
// diagnostics only.
func New(fsys fs.FS, name string) (*Medium, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if name == "" {
		name = "fs"
	}
	return &Medium{fsys: fsys, name: name}, nil
}

// FromDirectory creates a medium over a directory on the host.
func FromDirectory(dir string) (*Medium, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}
	return New(os.DirFS(dir), dir)
}

// Describe returns a short human-readable description of the medium.
func (m *Medium) Describe() string {
	return fmt.Sprintf("fs medium %q", m.name)
}

// Open opens the named image. The file is read into memory and the
// underlying handle closed before Open returns, so the medium holds no
// borrowed handles afterwards.
func (m *Medium) Open(path string) (interfaces.ImageFile, error) {
	file, err := m.fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%q is not a regular file", path)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	return &imageFile{
		name:   path,
		size:   info.Size(),
		reader: bytes.NewReader(data),
	}, nil
}

// ListImages walks the filesystem and returns every regular file.
func (m *Medium) ListImages() ([]interfaces.ImageInfo, error) {
	var images []interfaces.ImageInfo
	err := fs.WalkDir(m.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		images = append(images, interfaces.ImageInfo{
			Name: path,
			Size: uint64(info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk medium: %w", err)
	}
	return images, nil
}

// imageFile is an in-memory image. Size reports what the filesystem
// declared at open time, which the loader checks against the bytes it
// actually reads.
type imageFile struct {
	name   string
	size   int64
	reader *bytes.Reader
}

func (f *imageFile) ReadAt(p []byte, off int64) (int, error) {
	return f.reader.ReadAt(p, off)
}

func (f *imageFile) Close() error {
	return nil
}

func (f *imageFile) Size() int64 {
	return f.size
}

func (f *imageFile) Name() string {
	return f.name
}
