package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/medium/blockmedium"
	"github.com/deploymenttheory/go-bootstage/internal/medium/fsmedium"
	"github.com/deploymenttheory/go-bootstage/internal/parsers/catalog"
	"github.com/deploymenttheory/go-bootstage/internal/parsers/gpt"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

var (
	// What to show (medium command only)
	mediumImagesOnly bool
)

var mediumCmd = &cobra.Command{
	Use:   "medium [path]",
	Short: "Show a boot medium's partitions, catalog, and images",
	Long: `Medium shows what the stage loader sees on a boot medium: for GPT
disk images the partition table, the EFI system partition, and the boot
catalog it carries; for directories the bootable files in the tree.

Examples:
  # Show a GPT disk image's layout
  bootstage medium disk.img

  # List only the bootable images
  bootstage medium disk.img --images

  # Treat a directory tree as the medium
  bootstage medium ./esp`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMedium(args[0])
	},
}

func init() {
	rootCmd.AddCommand(mediumCmd)

	mediumCmd.Flags().BoolVar(&mediumImagesOnly, "images", false, "list bootable images only")
}

// openMedium opens path as a boot medium: directories become file-tree
// media, everything else is parsed as a GPT disk image. The returned
// function releases whatever the medium holds open.
func openMedium(path string) (interfaces.BootMedium, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat medium: %w", err)
	}

	if info.IsDir() {
		m, err := fsmedium.FromDirectory(path)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}

	m, err := blockmedium.FromFile(path, uint64(cfg.BlockSize))
	if err != nil {
		return nil, nil, err
	}
	return m, func() { _ = m.Close() }, nil
}

func runMedium(path string) error {
	medium, closeMedium, err := openMedium(path)
	if err != nil {
		return err
	}
	defer closeMedium()

	fmt.Printf("💿 Boot medium: %s\n", medium.Describe())

	if block, ok := medium.(*blockmedium.Medium); ok && !mediumImagesOnly {
		printPartitions(block)
		printCatalog(block)
	}

	return printImages(medium)
}

func printPartitions(m *blockmedium.Medium) {
	header := m.Header()
	fmt.Printf("\nGPT header:\n")
	fmt.Printf("    Disk GUID: %s\n", gpt.DiskGUID(header))
	fmt.Printf("    Usable LBAs: %d..%d\n", header.FirstUsableLBA, header.LastUsableLBA)

	partitions := m.Partitions()
	fmt.Printf("\nPartitions (%d):\n", len(partitions))
	for i := range partitions {
		entry := &partitions[i]
		marker := ""
		if gpt.IsSystemPartition(entry) {
			marker = "  (EFI system partition)"
		}
		fmt.Printf("    %2d  %-36s  %-20q  %8d..%-8d%s\n",
			i,
			gpt.PartitionTypeGUID(entry),
			gpt.PartitionName(entry),
			entry.FirstLBA, entry.LastLBA,
			marker)
	}
}

func printCatalog(m *blockmedium.Medium) {
	entries := m.CatalogEntries()
	if entries == nil {
		fmt.Printf("\nNo boot catalog: medium has no EFI system partition\n")
		return
	}

	fmt.Printf("\nBoot catalog (%d entries):\n", len(entries))
	for i := range entries {
		entry := &entries[i]
		marker := ""
		if entry.Flags&types.BootCatalogEntryDefault != 0 {
			marker = "  (default)"
		}
		fmt.Printf("    %-24s  %10d bytes  %d extents%s\n",
			catalog.EntryName(entry), entry.ImageLength, entry.ExtentCount, marker)
	}
}

func printImages(medium interfaces.BootMedium) error {
	lister, ok := medium.(interfaces.MediumLister)
	if !ok {
		return nil
	}

	images, err := lister.ListImages()
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	fmt.Printf("\nBootable images (%d):\n", len(images))
	for _, img := range images {
		fmt.Printf("    %-24s  %10d bytes\n", img.Name, img.Size)
	}
	return nil
}
