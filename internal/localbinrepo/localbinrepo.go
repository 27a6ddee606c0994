// Package localbinrepo manages a local binary repository (spec.md §4.4):
// a directory holding one database archive per named repo, a current
// symlink, and the artifact files the database indexes. It drives the
// database through the two external tools that own the archive format
// (`repo-add`, `repo-remove`, spec.md §6), never touching the tarball
// itself beyond creating an empty one at init.
package localbinrepo

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cairn-pm/cairn/internal/log"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// PrivHelper is the narrow subset of internal/privhelper.Runner a Client
// needs to create a repo directory it doesn't own and to respawn Refresh
// under elevation. A production Client is backed by a real privileged
// helper; tests back it with an in-memory fake.
type PrivHelper interface {
	Run(ctx context.Context, args ...string) error
}

// SPM is the narrow subset of internal/spm.Client Refresh needs to make
// the system package manager re-read a repo's database.
type SPM interface {
	Sync(ctx context.Context) error
}

// Client drives repo-add/repo-remove against one or more local repos.
type Client struct {
	// RepoAddBin, RepoRemoveBin default to "repo-add"/"repo-remove".
	RepoAddBin    string
	RepoRemoveBin string

	Priv PrivHelper
	SPM  SPM
}

func (c *Client) repoAddBin() string {
	if c.RepoAddBin == "" {
		return "repo-add"
	}
	return c.RepoAddBin
}

func (c *Client) repoRemoveBin() string {
	if c.RepoRemoveBin == "" {
		return "repo-remove"
	}
	return c.RepoRemoveBin
}

// dbFile returns the versioned database archive name repo-add/repo-remove
// expect as their first argument.
func dbFile(dir, name string) string {
	return filepath.Join(dir, name+".db.tar.gz")
}

// linkFile returns the unversioned symlink pacman's sync config points at.
func linkFile(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

// Init creates dir (escalating through Priv if dir doesn't exist and can't
// be created directly) and an empty database archive plus its symlink, if
// either is missing.
func (c *Client) Init(ctx context.Context, dir, name string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			if c.Priv == nil {
				return fmt.Errorf("%w: create repo directory %s: %v", pkgmodel.ErrPermission, dir, mkErr)
			}
			if privErr := c.Priv.Run(ctx, "install", "-d", "-m", "0755", dir); privErr != nil {
				return fmt.Errorf("%w: create repo directory %s via privileged helper: %v", pkgmodel.ErrPermission, dir, privErr)
			}
		}
	} else if err != nil {
		return fmt.Errorf("%w: stat %s: %v", pkgmodel.ErrPublish, dir, err)
	}

	db := dbFile(dir, name)
	if _, err := os.Stat(db); os.IsNotExist(err) {
		if err := writeEmptyArchive(db); err != nil {
			return fmt.Errorf("%w: create empty database %s: %v", pkgmodel.ErrPublish, db, err)
		}
	}

	link := linkFile(dir, name)
	if target, err := os.Readlink(link); err != nil || target != filepath.Base(db) {
		os.Remove(link)
		if err := os.Symlink(filepath.Base(db), link); err != nil {
			return fmt.Errorf("%w: link %s: %v", pkgmodel.ErrPublish, link, err)
		}
	}

	return nil
}

// writeEmptyArchive creates a valid, empty gzip-compressed tar at path,
// matching the archive repo-add itself would produce for a database with
// no entries.
func writeEmptyArchive(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// Add stages artifactPaths (and their ".sig" siblings, when present) into
// dir — moving them when moveMode, copying otherwise — then commits them
// to the database via repo-add. Publication is only complete once
// repo-add exits zero (spec.md §4.4 "Atomicity").
func (c *Client) Add(ctx context.Context, dir, name string, artifactPaths []string, moveMode bool) error {
	staged := make([]string, 0, len(artifactPaths))
	for _, src := range artifactPaths {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := stageFile(src, dst, moveMode); err != nil {
			return fmt.Errorf("%w: stage %s: %v", pkgmodel.ErrPublish, src, err)
		}
		staged = append(staged, dst)

		sigSrc := src + ".sig"
		if _, err := os.Stat(sigSrc); err == nil {
			if err := stageFile(sigSrc, dst+".sig", moveMode); err != nil {
				return fmt.Errorf("%w: stage signature %s: %v", pkgmodel.ErrPublish, sigSrc, err)
			}
		}
	}

	if len(staged) == 0 {
		return nil
	}

	args := append([]string{"-R", dbFile(dir, name)}, staged...)
	if err := c.run(ctx, c.repoAddBin(), args...); err != nil {
		return fmt.Errorf("%w: repo-add %s: %v", pkgmodel.ErrPublish, name, err)
	}
	return nil
}

// Remove drops pkgNames from name's database via repo-remove. Artifact
// files themselves are left on disk; callers prune them separately.
func (c *Client) Remove(ctx context.Context, dir, name string, pkgNames []string) error {
	if len(pkgNames) == 0 {
		return nil
	}
	args := append([]string{dbFile(dir, name)}, pkgNames...)
	if err := c.run(ctx, c.repoRemoveBin(), args...); err != nil {
		return fmt.Errorf("%w: repo-remove %s: %v", pkgmodel.ErrPublish, name, err)
	}
	return nil
}

// Refresh makes the system package manager re-read repos' databases
// (spec.md §4.4: "must complete before any subsequent SPM install so
// dependency resolution sees the new packages"). It requires root;
// non-root callers are respawned under the privileged helper.
func (c *Client) Refresh(ctx context.Context, repos []string) error {
	if len(repos) == 0 {
		return nil
	}
	if os.Geteuid() != 0 {
		if c.Priv == nil {
			return fmt.Errorf("%w: refresh requires elevation and no privileged helper is configured", pkgmodel.ErrPermission)
		}
		args := append([]string{os.Args[0], "--sync-db-only"}, repos...)
		return c.Priv.Run(ctx, args...)
	}
	return c.SPM.Sync(ctx)
}

// AllFiles returns repoDirs filtered to those that actually exist on disk,
// for binding read-only into the isolated build root (spec.md §4.4).
// Resolving which directories the SPM configuration references is an
// external collaborator's job (pacman.conf parsing); repoDirs is that
// already-resolved list.
func AllFiles(repoDirs []string) []string {
	var out []string
	for _, dir := range repoDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		} else {
			log.Default().Warn("configured local repo directory is missing, skipping", "dir", dir)
		}
	}
	return out
}

func stageFile(src, dst string, moveMode bool) error {
	if moveMode {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		// Cross-device rename: fall through to copy+remove.
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if moveMode {
		return os.Remove(src)
	}
	return nil
}

func (c *Client) run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
