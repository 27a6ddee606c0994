package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cairn-pm/cairn/internal/archiveutil"
	"github.com/cairn-pm/cairn/internal/fetcher"
	"github.com/cairn-pm/cairn/internal/pager"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// DiffProvider is the narrow subset of internal/vcsclient.Client a
// PagerReviewer needs to render a full diff rather than just the changed
// paths fetcher.Result already carries.
type DiffProvider interface {
	Diff(ctx context.Context, repoDir, from, to string) ([]byte, error)
}

// PagerReviewer pages the diff between a base's previously-seen and
// newly-fetched commit and asks for confirmation (spec.md §4.2 "diff
// unseen paths through a pager and confirm"), grounded on
// internal/pager's Show and internal/vcsclient's Diff.
type PagerReviewer struct {
	VCS     DiffProvider
	Confirm Confirmer
}

func (r *PagerReviewer) Review(ctx context.Context, base string, result *fetcher.Result) (bool, error) {
	if !result.Changed {
		return true, nil
	}

	var diff []byte
	if result.OldCommit != "" {
		d, err := r.VCS.Diff(ctx, result.Dir, result.OldCommit, result.NewCommit)
		if err != nil {
			return false, err
		}
		diff = d
	} else {
		// Fresh clone: there's no prior commit to diff against, so list
		// what's there instead of paging an empty diff.
		diff = []byte(strings.Join(result.ChangedPaths, "\n") + "\n")
	}

	diff = append(diff, bundledArchiveSummary(result.Dir, result.ChangedPaths)...)

	if err := pager.Show(diff); err != nil {
		return false, fmt.Errorf("%w: show diff for %s: %v", pkgmodel.ErrFetch, base, err)
	}
	return r.Confirm.Confirm(fmt.Sprintf("Proceed with %s?", base))
}

// bundledArchiveSummary extracts any changed source archive bundled
// directly in a recipe's checkout (a source= entry with no download URL,
// committed alongside the PKGBUILD) and lists what it contains, so the
// review diff shows the archive's actual contents instead of an opaque
// binary blob. Extraction failures are reported inline rather than
// aborting the review; a corrupt bundled archive is something the
// operator should see, not something that blocks them from reviewing the
// rest of the change.
func bundledArchiveSummary(dir string, changedPaths []string) []byte {
	var out []byte
	for _, rel := range changedPaths {
		if archiveutil.DetectFormat(rel) == archiveutil.FormatUnknown {
			continue
		}

		stageDir, err := os.MkdirTemp("", "cairn-review-archive-*")
		if err != nil {
			continue
		}
		defer os.RemoveAll(stageDir)

		archivePath := filepath.Join(dir, rel)
		if err := archiveutil.Extract(archivePath, stageDir, 0); err != nil {
			out = append(out, fmt.Sprintf("\n--- %s: could not extract for review: %v\n", rel, err)...)
			continue
		}

		out = append(out, fmt.Sprintf("\n--- %s (bundled archive contents) ---\n", rel)...)
		filepath.WalkDir(stageDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			entry, relErr := filepath.Rel(stageDir, path)
			if relErr != nil {
				return nil
			}
			out = append(out, entry...)
			out = append(out, '\n')
			return nil
		})
	}
	return out
}

// FileManagerReviewer spawns a file manager hook pointed at a base's
// checkout and waits for it to exit before asking for confirmation
// (spec.md §4.2 "if a file-manager hook is configured, spawn it and
// wait").
type FileManagerReviewer struct {
	// Cmd is the file-manager binary, invoked as `Cmd <checkout-dir>`.
	Cmd     string
	Confirm Confirmer
}

func (r *FileManagerReviewer) Review(ctx context.Context, base string, result *fetcher.Result) (bool, error) {
	if !result.Changed {
		return true, nil
	}

	cmd := exec.CommandContext(ctx, r.Cmd, result.Dir)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return false, fmt.Errorf("%w: file manager hook for %s: %v", pkgmodel.ErrFetch, base, err)
	}
	return r.Confirm.Confirm(fmt.Sprintf("Proceed with %s?", base))
}

// LocalReviewer always approves without prompting, for local recipe
// bases: the operator already controls that checkout directly, so there
// is nothing to diff or confirm (spec.md §4.2's review gate only makes
// sense for content fetched from elsewhere).
type LocalReviewer struct{}

func (LocalReviewer) Review(ctx context.Context, base string, result *fetcher.Result) (bool, error) {
	return true, nil
}
