package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cairn-pm/cairn/internal/log"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// waitForDBUnlock polls lockPath at pollInterval until it's gone, for the
// SPM database lock (spec.md §5 "polled before any SPM invocation that
// needs elevation... the pipeline waits in 3s intervals with a
// message"). An empty lockPath or a non-positive pollInterval disables
// the wait entirely.
func waitForDBUnlock(ctx context.Context, lockPath string, pollInterval time.Duration) error {
	if lockPath == "" || pollInterval <= 0 {
		return nil
	}

	logged := false
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			return nil
		}
		if !logged {
			log.Default().Warn("waiting for SPM database lock", "path", lockPath)
			logged = true
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for database lock %s: %v", pkgmodel.ErrCancelled, lockPath, ctx.Err())
		case <-ticker.C:
		}
	}
}
