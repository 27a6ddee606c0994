package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// stdinConfirmer asks the operator a yes/no question on the controlling
// terminal, satisfying internal/pipeline.Confirmer. An empty answer
// defaults to yes, matching a typical AUR helper's review prompt.
type stdinConfirmer struct{}

func (stdinConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [Y/n] ", prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes", nil
}

// autoConfirmer always approves, for --noconfirm-style non-interactive runs.
type autoConfirmer struct{}

func (autoConfirmer) Confirm(string) (bool, error) { return true, nil }
