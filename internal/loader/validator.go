package loader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-bootstage/internal/types"
)

// ValidateImage checks the descriptor's bytes against the registered
// executable formats and fills in the format, entry offset, and load
// address fields. A zero-length buffer or a recognized-but-malformed
// image fails with ImageCorrupt; bytes no format recognizes fail with
// UnsupportedFormat.
func (l *Loader) ValidateImage(desc *ImageDescriptor) error {
	if desc == nil {
		return l.fail(types.OutcomeImageCorrupt, stageValidate, fmt.Errorf("no image descriptor"))
	}
	if len(desc.Buffer) == 0 {
		return l.fail(types.OutcomeImageCorrupt, stageValidate,
			fmt.Errorf("image %q is empty", desc.Path))
	}

	format, ok := l.registry.Detect(desc.Buffer)
	if !ok {
		return l.fail(types.OutcomeUnsupportedFormat, stageValidate,
			fmt.Errorf("no registered format recognizes %q (formats: %v)", desc.Path, l.registry.Names()))
	}

	entry, err := format.EntryOffset(desc.Buffer)
	if err != nil {
		return l.fail(types.OutcomeImageCorrupt, stageValidate,
			fmt.Errorf("%s image %q is malformed: %w", format.Name(), desc.Path, err))
	}

	desc.Format = format
	desc.EntryOffset = entry
	desc.LoadAddress, desc.HasLoadAddress = format.LoadAddress(desc.Buffer)

	l.phase = PhaseValidated
	l.logger.Debug("image validated",
		zap.String("path", desc.Path),
		zap.String("format", format.Name()),
		zap.Uint64("entryOffset", entry),
		zap.Bool("positionDependent", desc.HasLoadAddress))
	l.console.Print("validated %s as %s, entry offset %#x", desc.Path, format.Name(), entry)
	return nil
}
