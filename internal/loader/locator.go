package loader

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// LocateImage opens the named image on the medium and reads it into a
// descriptor. An absent path or unreadable medium fails with
// ImageNotFound; a medium whose readable bytes disagree with the size it
// reported fails with ImageCorrupt and no descriptor is created. The
// lookup is read-only, so repeated calls against unchanged medium state
// yield identical descriptors.
func (l *Loader) LocateImage(medium interfaces.BootMedium, path string) (*ImageDescriptor, error) {
	if medium == nil {
		return nil, l.fail(types.OutcomeImageNotFound, stageLocate, fmt.Errorf("no boot medium"))
	}

	file, err := medium.Open(path)
	if err != nil {
		return nil, l.fail(types.OutcomeImageNotFound, stageLocate, err)
	}
	defer file.Close()

	size := file.Size()
	if size < 0 {
		return nil, l.fail(types.OutcomeImageCorrupt, stageLocate,
			fmt.Errorf("medium reported invalid size %d for %q", size, path))
	}

	buf := make([]byte, size)
	if size > 0 {
		n, err := file.ReadAt(buf, 0)
		if int64(n) != size {
			return nil, l.fail(types.OutcomeImageCorrupt, stageLocate,
				fmt.Errorf("read %d of the %d bytes the medium declared for %q: %w", n, size, path, err))
		}
	}

	l.phase = PhaseImageLoaded
	l.console.Print("loaded %s (%d bytes) from %s", path, size, medium.Describe())
	return &ImageDescriptor{Path: path, Buffer: buf}, nil
}
