package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/platform"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the cairn environment is configured correctly",
	Long: `Verify that the environment is healthy: the home directory exists, the
system package manager binary is on PATH, a privileged-escalation helper
is available, and the host platform looks like the pacman-compatible
target spec.md assumes.

Exits with a non-zero status if any check fails, for use as a gate in
scripts:

  cairn doctor || exit 1`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	fmt.Println("Checking cairn environment...")
	failed := false

	fmt.Printf("  Home directory: %s", a.cfg.HomeDir)
	if info, err := os.Stat(a.cfg.HomeDir); err != nil {
		fmt.Println(" ... FAIL")
		fmt.Fprintln(os.Stderr, "    Directory does not exist; run any cairn command once to create it")
		failed = true
	} else if !info.IsDir() {
		fmt.Println(" ... FAIL")
		fmt.Fprintln(os.Stderr, "    Path exists but is not a directory")
		failed = true
	} else {
		fmt.Println(" ... ok")
	}

	spmBin := a.spm.Bin
	if spmBin == "" {
		spmBin = "pacman"
	}
	fmt.Printf("  SPM binary (%s)", spmBin)
	if _, err := exec.LookPath(spmBin); err != nil {
		fmt.Println(" ... FAIL")
		fmt.Fprintln(os.Stderr, "    Not found on PATH")
		failed = true
	} else {
		fmt.Println(" ... ok")
	}

	fmt.Print("  Privileged-escalation helper")
	if a.priv == nil {
		fmt.Println(" ... FAIL")
		fmt.Fprintln(os.Stderr, "    Neither sudo nor doas found; installs needing elevation will fail")
		fmt.Fprintln(os.Stderr, "    Set helper explicitly: cairn config set helper <path>")
		failed = true
	} else {
		fmt.Println(" ... ok")
	}

	fmt.Print("  Host platform")
	target, err := platform.DetectTarget()
	if err != nil {
		fmt.Println(" ... FAIL")
		fmt.Fprintf(os.Stderr, "    Could not detect platform: %v\n", err)
		failed = true
	} else if target.OS() != "linux" {
		fmt.Println(" ... FAIL")
		fmt.Fprintf(os.Stderr, "    %s is not linux; a pacman-compatible system package manager is required\n", target.OS())
		failed = true
	} else {
		fmt.Println(" ... ok")
		fmt.Printf("    arch=%s family=%s libc=%s\n", target.Arch(), target.LinuxFamily(), target.Libc())
	}

	if failed {
		fmt.Println()
		return fmt.Errorf("environment check failed")
	}

	fmt.Println()
	fmt.Println("Everything looks good!")
	return nil
}
