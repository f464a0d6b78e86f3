package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstage/internal/formats"
	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

var (
	// Image source selection (inspect command only)
	inspectMedium string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [image-path]",
	Short: "Inspect a kernel image's executable format",
	Long: `Inspect reports what the stage loader would learn about an image
during validation: the detected executable format, the entry point
offset into the image, and the load address for position-dependent
images.

Examples:
  # Inspect a local image file
  bootstage inspect build/vmlinuz.elf

  # Inspect an image inside a disk image's boot catalog
  bootstage inspect vmlinuz.elf --medium disk.img`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectMedium, "medium", "", "read the image from this boot medium instead of the local filesystem")
}

func runInspect(path string) error {
	data, err := readImage(path)
	if err != nil {
		return err
	}

	fmt.Printf("🔍 Inspecting image: %s\n", path)
	fmt.Printf("    Size: %d bytes (%d pages)\n", len(data), types.PagesFor(uint64(len(data))))

	registry, err := formats.NewRegistryFromNames(cfg.Formats)
	if err != nil {
		return err
	}

	format, ok := registry.Detect(data)
	if !ok {
		return fmt.Errorf("no registered format recognizes %q (formats: %v)", path, cfg.Formats)
	}
	fmt.Printf("    Format: %s\n", format.Name())

	entry, err := format.EntryOffset(data)
	if err != nil {
		return fmt.Errorf("%s image %q is malformed: %w", format.Name(), path, err)
	}
	fmt.Printf("    Entry offset: %#x\n", entry)

	if addr, fixed := format.LoadAddress(data); fixed {
		fmt.Printf("    Load address: %#x\n", addr)
	} else {
		fmt.Println("    Load address: any (position-independent)")
	}

	return nil
}

// readImage fetches the image bytes either from the local filesystem or,
// when --medium is given, from a boot medium the way the loader would.
func readImage(path string) ([]byte, error) {
	if inspectMedium == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return data, nil
	}

	medium, closeMedium, err := openMedium(inspectMedium)
	if err != nil {
		return nil, err
	}
	defer closeMedium()

	return readFromMedium(medium, path)
}

// readFromMedium pulls one whole image off a medium.
func readFromMedium(medium interfaces.BootMedium, path string) ([]byte, error) {
	file, err := medium.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q on %s: %w", path, medium.Describe(), err)
	}
	defer file.Close()

	data := make([]byte, file.Size())
	if len(data) == 0 {
		return data, nil
	}
	if n, err := file.ReadAt(data, 0); int64(n) != file.Size() {
		return nil, fmt.Errorf("read %d of %d bytes of %q: %w", n, file.Size(), path, err)
	}
	return data, nil
}
