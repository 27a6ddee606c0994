// Package fetcher implements the install pipeline's Pending → Fetched
// transition (spec.md §4.2, §2 "Fetcher"): clone or refresh a recipe
// base's on-disk git checkout, and report which paths changed so the
// pipeline's review gate can diff only what's new.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// VCS is the narrow subset of internal/vcsclient.Client the fetcher
// drives. A production Fetcher is backed by a real *vcsclient.Client;
// tests back it with an in-memory fake, mirroring internal/devel's
// TipResolver seam.
type VCS interface {
	Clone(ctx context.Context, remoteURL, destDir string) error
	Fetch(ctx context.Context, repoDir string) error
	ResetHard(ctx context.Context, repoDir, ref string) error
	CleanUntracked(ctx context.Context, repoDir string) error
	RevParse(ctx context.Context, repoDir, ref string) (string, error)
	DiffNameOnly(ctx context.Context, repoDir, from, to string) ([]string, error)
}

// Result is the outcome of fetching one base.
type Result struct {
	Base         string
	Dir          string
	Changed      bool // false only when an existing checkout's tip didn't move
	OldCommit    string
	NewCommit    string
	ChangedPaths []string
}

// Fetcher clones/refreshes recipe-base checkouts under CloneDir.
type Fetcher struct {
	CloneDir string
	VCS      VCS

	// Concurrency bounds simultaneous fetches across a batch, matching
	// internal/devel.Probe's bounded-worker-pool shape for the same kind
	// of I/O-bound, independent-per-base work. Defaults to 4.
	Concurrency int64
}

// EnsureBase clones baseName's checkout if absent, or fetches and fast-
// forwards it to remoteURL's tip at branch ("" for the remote's default
// branch) if present. The returned Dir is always present and checked out
// at the reported NewCommit on success.
func (f *Fetcher) EnsureBase(ctx context.Context, baseName, remoteURL, branch string) (*Result, error) {
	dir := filepath.Join(f.CloneDir, baseName)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := f.VCS.Clone(ctx, remoteURL, dir); err != nil {
			return nil, fmt.Errorf("%w: clone %s: %v", pkgmodel.ErrFetch, baseName, err)
		}
		commit, err := f.VCS.RevParse(ctx, dir, "HEAD")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
		}
		return &Result{Base: baseName, Dir: dir, Changed: true, NewCommit: commit}, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", pkgmodel.ErrFetch, dir, err)
	}

	oldCommit, err := f.VCS.RevParse(ctx, dir, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}

	if err := f.VCS.Fetch(ctx, dir); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}

	ref := "origin/HEAD"
	if branch != "" {
		ref = "origin/" + branch
	}
	newCommit, err := f.VCS.RevParse(ctx, dir, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}

	if newCommit == oldCommit {
		return &Result{Base: baseName, Dir: dir, Changed: false, OldCommit: oldCommit, NewCommit: newCommit}, nil
	}

	if err := f.VCS.ResetHard(ctx, dir, newCommit); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}
	if err := f.VCS.CleanUntracked(ctx, dir); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}

	paths, err := f.VCS.DiffNameOnly(ctx, dir, oldCommit, newCommit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}

	return &Result{
		Base: baseName, Dir: dir, Changed: true,
		OldCommit: oldCommit, NewCommit: newCommit, ChangedPaths: paths,
	}, nil
}

// Reset restores baseName's checkout to its current HEAD and removes
// untracked files, for the install pipeline's post-batch clean-after
// option (spec.md §4.2 "Cleanup").
func (f *Fetcher) Reset(ctx context.Context, baseName string) error {
	dir := filepath.Join(f.CloneDir, baseName)
	head, err := f.VCS.RevParse(ctx, dir, "HEAD")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}
	if err := f.VCS.ResetHard(ctx, dir, head); err != nil {
		return fmt.Errorf("%w: %s: %v", pkgmodel.ErrFetch, baseName, err)
	}
	return f.VCS.CleanUntracked(ctx, dir)
}

// Endpoint is one (remote URL, branch) pair to fetch for a base, in the
// same shape internal/devel.Probe consumes.
type Endpoint struct {
	Base      string
	RemoteURL string
	Branch    string
}

// EnsureAll fetches every endpoint concurrently, bounded by Concurrency.
// A failure on one endpoint doesn't cancel the others (the pipeline's own
// failure-isolation policy decides what a Failed base means); errs is
// keyed by base name and only contains entries for bases that failed.
func (f *Fetcher) EnsureAll(ctx context.Context, endpoints []Endpoint) (results map[string]*Result, errs map[string]error) {
	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := semaphore.NewWeighted(concurrency)

	results = make(map[string]*Result, len(endpoints))
	errs = make(map[string]error)
	resultCh := make(chan struct {
		base string
		res  *Result
		err  error
	}, len(endpoints))

	for _, ep := range endpoints {
		ep := ep
		if err := sem.Acquire(ctx, 1); err != nil {
			resultCh <- struct {
				base string
				res  *Result
				err  error
			}{ep.Base, nil, err}
			continue
		}
		go func() {
			defer sem.Release(1)
			res, err := f.EnsureBase(ctx, ep.Base, ep.RemoteURL, ep.Branch)
			resultCh <- struct {
				base string
				res  *Result
				err  error
			}{ep.Base, res, err}
		}()
	}

	for range endpoints {
		r := <-resultCh
		if r.err != nil {
			errs[r.base] = r.err
			continue
		}
		results[r.base] = r.res
	}
	return results, errs
}
