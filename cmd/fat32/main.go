// Command fat32 opens a FAT32 image and either runs scandisk against it or
// drops into an interactive directory browser.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fatcrawl/fat32"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var basicOnly, lostCluster, crossChain, sizeCheck, skipChecks, readOnly bool

	cmd := &cobra.Command{
		Use:          "fat32 <image>",
		Short:        "Browse and repair a FAT32 filesystem image",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanMode := basicOnly || lostCluster || crossChain || sizeCheck
			return run(args[0], runOptions{
				scanMode:   scanMode,
				skipChecks: skipChecks,
				readOnly:   readOnly || (scanMode && !(lostCluster || crossChain || sizeCheck)),
				scan: fat32.ScanOptions{
					SizeCheck:   sizeCheck,
					CrossChain:  crossChain,
					LostCluster: lostCluster,
				},
			})
		},
	}

	cmd.Flags().BoolVarP(&basicOnly, "basic", "s", false, "scandisk: basic validation only")
	cmd.Flags().BoolVarP(&lostCluster, "lost-cluster", "l", false, "scandisk: enable the lost-cluster pass")
	cmd.Flags().BoolVarP(&crossChain, "cross-chain", "i", false, "scandisk: enable the cross-chain pass")
	cmd.Flags().BoolVarP(&sizeCheck, "size-check", "z", false, "scandisk: enable the size-check pass")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "skip boot sector structural validation")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "open the volume without permitting mutation")

	return cmd
}

type runOptions struct {
	scanMode   bool
	skipChecks bool
	readOnly   bool
	scan       fat32.ScanOptions
}

func run(imagePath string, opts runOptions) error {
	flag := os.O_RDWR
	if opts.readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(imagePath, flag, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	image := fat32.NewFileImage(f, 512)
	vol, err := fat32.New(image, fat32.Options{
		SkipChecks: opts.skipChecks,
		ScanMode:   opts.scanMode,
		ReadOnly:   opts.readOnly,
	})
	if err != nil {
		return err
	}

	if opts.scanMode {
		report, err := vol.Scandisk(opts.scan)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		fmt.Println(report.String())
		return nil
	}

	return runBrowser(vol)
}
