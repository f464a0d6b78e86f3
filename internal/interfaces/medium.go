package interfaces

import (
	"io"
)

// BootMedium provides read access to boot images stored on a device or directory
type BootMedium interface {
	// Open opens the named image on the medium for reading
	Open(path string) (ImageFile, error)

	// Describe returns a short human-readable description of the medium
	Describe() string
}

// ImageFile represents a single readable image on a boot medium
type ImageFile interface {
	io.ReaderAt
	io.Closer

	// Size returns the length of the image in bytes as reported by the medium
	Size() int64

	// Name returns the path the image was opened under
	Name() string
}

// MediumLister provides methods for enumerating the images a medium carries
type MediumLister interface {
	// ListImages returns all boot images available on the medium
	ListImages() ([]ImageInfo, error)
}

// ImageInfo represents information about a single image on a boot medium
type ImageInfo struct {
	// The path of the image on the medium
	Name string

	// The size of the image in bytes
	Size uint64
}
