package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootstage/internal/firmware"
	"github.com/deploymenttheory/go-bootstage/internal/formats"
	"github.com/deploymenttheory/go-bootstage/internal/interfaces"
	"github.com/deploymenttheory/go-bootstage/internal/loader"
	"github.com/deploymenttheory/go-bootstage/internal/machine"
	"github.com/deploymenttheory/go-bootstage/internal/manifest"
	"github.com/deploymenttheory/go-bootstage/internal/medium/blockmedium"
	"github.com/deploymenttheory/go-bootstage/internal/shim"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

var (
	// Boot selection (boot command only)
	bootCmdline  string
	bootEntry    string
	bootManifest string
)

var bootCmd = &cobra.Command{
	Use:   "boot [medium-path] [image-path]",
	Short: "Rehearse the full boot pipeline against an image",
	Long: `Boot runs the whole two-stage pipeline on simulated hardware: the
stage loader locates the image on the medium, validates its format,
places it in a simulated RAM arena, exits boot services, and jumps to
the kernel entry shim, which masks interrupts, carves the kernel stack,
and calls into a stand-in kernel that reports what it was handed.

The image is picked from the second argument, a manifest entry, or the
medium's default catalog entry, in that order of preference.

Exit codes follow the boot outcome: 0 success, 2 image not found,
3 image corrupt, 4 unsupported format, 5 insufficient memory, 6 boot
services unavailable.

Examples:
  # Boot the default catalog entry of a disk image
  bootstage boot disk.img

  # Boot a named image from a directory medium
  bootstage boot ./esp boot/vmlinuz.elf --cmdline "console=ttyS0"

  # Boot a manifest entry
  bootstage boot disk.img --manifest bootstage.yaml --entry recovery`,

	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath := ""
		if len(args) == 2 {
			imagePath = args[1]
		}
		return runBoot(args[0], imagePath)
	},
}

func init() {
	rootCmd.AddCommand(bootCmd)

	bootCmd.Flags().StringVar(&bootCmdline, "cmdline", "", "kernel command line (overrides the manifest entry's)")
	bootCmd.Flags().StringVar(&bootEntry, "entry", "", "manifest entry to boot (default: the manifest's default entry)")
	bootCmd.Flags().StringVar(&bootManifest, "manifest", "", "boot manifest file naming images and command lines")
}

func runBoot(mediumPath, imagePath string) error {
	medium, closeMedium, err := openMedium(mediumPath)
	if err != nil {
		return err
	}
	defer closeMedium()

	selection, err := resolveSelection(medium, imagePath)
	if err != nil {
		return err
	}

	registry, err := bootRegistry(selection.Format)
	if err != nil {
		return err
	}

	ram, err := firmware.NewRAM(firmware.DefaultRAMBase, cfg.MemoryBytes())
	if err != nil {
		return fmt.Errorf("failed to create memory arena: %w", err)
	}
	services, err := firmware.NewServices(ram, cfg.RuntimeTablePages, logger)
	if err != nil {
		return fmt.Errorf("failed to create boot services: %w", err)
	}

	state := machine.NewState()
	entryShim, err := shim.New(ram, state, logger)
	if err != nil {
		return fmt.Errorf("failed to create kernel entry shim: %w", err)
	}
	port := machine.NewSimPort(entryShim.Guest(kernelMain))

	stage, err := loader.New(loader.Capabilities{
		Services: services,
		Memory:   ram,
		Console:  firmware.NewZapConsole(logger),
		Port:     port,
		State:    state,
	}, registry, logger)
	if err != nil {
		return fmt.Errorf("failed to create stage loader: %w", err)
	}

	fmt.Printf("🥾 Booting %q from %s\n", selection.Image, medium.Describe())

	err = stage.Boot(medium, selection.Image, selection.Cmdline)
	if errors.Is(err, machine.ErrHalted) {
		// The simulated machine ran the kernel to completion and halted.
		fmt.Printf("✅ Boot succeeded: handed off at %#x, %d pages of kernel image resident\n",
			port.Entry(), services.OutstandingAllocations())
		return nil
	}

	var outcomeErr *types.OutcomeError
	if errors.As(err, &outcomeErr) {
		fmt.Printf("❌ Boot failed in %q: %s (EFI status %#x)\n",
			outcomeErr.Stage, outcomeErr.Outcome, outcomeErr.Outcome.StatusCode())
	}
	return err
}

// bootSelection is the resolved image choice for one boot attempt.
type bootSelection struct {
	Image   string
	Cmdline string
	Format  string
}

// resolveSelection picks the image to boot: an explicit path argument
// wins, then the manifest, then the medium's default catalog entry.
func resolveSelection(medium interfaces.BootMedium, imagePath string) (bootSelection, error) {
	if bootEntry != "" && bootManifest == "" {
		return bootSelection{}, fmt.Errorf("--entry requires --manifest")
	}

	if imagePath != "" {
		return bootSelection{Image: imagePath, Cmdline: bootCmdline}, nil
	}

	if bootManifest != "" {
		m, err := manifest.Load(bootManifest)
		if err != nil {
			return bootSelection{}, err
		}

		entry, ok := m.DefaultEntry()
		if bootEntry != "" {
			entry, ok = m.FindEntry(bootEntry)
		}
		if !ok {
			return bootSelection{}, fmt.Errorf("manifest has no entry %q", bootEntry)
		}

		cmdline := entry.Cmdline
		if bootCmdline != "" {
			cmdline = bootCmdline
		}
		fmt.Printf("📋 Manifest entry: %s\n", entry.Label())
		return bootSelection{Image: entry.Image, Cmdline: cmdline, Format: entry.Format}, nil
	}

	if block, ok := medium.(*blockmedium.Medium); ok {
		if name, ok := block.DefaultImage(); ok {
			return bootSelection{Image: name, Cmdline: bootCmdline}, nil
		}
	}
	return bootSelection{}, fmt.Errorf("no image selected: pass an image path, a manifest, or use a medium with a boot catalog")
}

// bootRegistry builds the format registry for this attempt, honoring a
// manifest entry's format pin over the configured detection order.
func bootRegistry(pinned string) (*formats.Registry, error) {
	names := cfg.Formats
	if pinned != "" {
		names = []string{pinned}
	}
	return formats.NewRegistryFromNames(names)
}

// kernelMain stands in for the kernel: it reports what the shim handed
// it and returns, which halts the simulated machine.
func kernelMain(ctx *shim.Context) error {
	record := ctx.Record
	fmt.Printf("🚀 Kernel entered\n")
	fmt.Printf("    Command line: %q\n", record.CommandLine)
	fmt.Printf("    Stack: %#x..%#x\n", ctx.StackBase, ctx.StackTop)
	fmt.Printf("    Runtime table: %#x (%d bytes)\n", record.RuntimeTable, record.RuntimeTableSize)
	fmt.Printf("    Memory map: %d regions, %d pages of kernel image\n",
		len(record.MemoryMap.Descriptors), record.MemoryMap.TotalPages(types.MemoryLoaderCode))
	return nil
}
