package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/devel"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a summary of installed and tracked packages",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}

	installed, err := a.spm.QueryAll(ctx)
	if err != nil {
		return err
	}

	var explicit, dependency, foreign int
	for _, pkg := range installed {
		switch pkg.Reason {
		case pkgmodel.ReasonExplicit:
			explicit++
		case pkgmodel.ReasonDependency:
			dependency++
		}
		if _, ok, err := a.spm.SyncInfo(ctx, pkg.Name); err == nil && !ok {
			foreign++
		}
	}

	tracker, err := devel.Load(a.cfg.TrackerFile())
	if err != nil {
		return err
	}

	fmt.Printf("Installed packages  : %d\n", len(installed))
	fmt.Printf("  Explicit          : %d\n", explicit)
	fmt.Printf("  As dependency     : %d\n", dependency)
	fmt.Printf("  Foreign (non-SPM) : %d\n", foreign)
	fmt.Printf("Devel-tracked bases : %d\n", len(tracker.Bases))
	fmt.Printf("Clone dir size      : %s\n", humanDirSize(a.cfg.CloneDir))

	return nil
}

func humanDirSize(dir string) string {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(total))
}
