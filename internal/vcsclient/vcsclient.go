// Package vcsclient resolves the tip commit of a remote git-compatible
// endpoint for the develop-from-source tracker (spec.md §4.3), and drives
// the clone/fetch/reset/clean operations internal/fetcher needs to
// maintain a local recipe-tree checkout (spec.md §6). It owns only the
// narrow argv/stdout contract of the external VCS client, plus a
// GitHub-specific fast path that avoids spawning a process at all for the
// common case of a github.com remote.
package vcsclient

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Client resolves tip commits for (url, branch) endpoints.
type Client struct {
	// GitPath is the git-compatible binary invoked for non-GitHub remotes.
	// Defaults to "git" when empty.
	GitPath string

	gh *github.Client
}

// New returns a Client. token, when non-empty, authenticates the GitHub
// fast path and raises its rate limit; it corresponds to the GITHUB_TOKEN
// environment variable.
func New(token string) *Client {
	c := &Client{GitPath: "git"}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		c.gh = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		c.gh = github.NewClient(nil)
	}
	return c
}

// TipCommit resolves the current tip commit of remoteURL at branch ("" for
// the remote's default branch / HEAD).
func (c *Client) TipCommit(ctx context.Context, remoteURL, branch string) (string, error) {
	if owner, repo, ok := githubRepo(remoteURL); ok {
		sha, err := c.githubTip(ctx, owner, repo, branch)
		if err == nil {
			return sha, nil
		}
		// Fall through to the generic git path on any fast-path failure
		// (rate limit, private repo, API outage) rather than failing the
		// probe outright.
	}
	return c.gitLsRemote(ctx, remoteURL, branch)
}

func (c *Client) githubTip(ctx context.Context, owner, repo, branch string) (string, error) {
	if branch == "" {
		r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return "", fmt.Errorf("%w: github repo lookup: %v", pkgmodel.ErrNetwork, err)
		}
		branch = r.GetDefaultBranch()
	}

	ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("%w: github ref lookup: %v", pkgmodel.ErrNetwork, err)
	}
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("%w: github returned empty sha for %s/%s@%s", pkgmodel.ErrNetwork, owner, repo, branch)
	}
	return sha, nil
}

func (c *Client) gitLsRemote(ctx context.Context, remoteURL, branch string) (string, error) {
	gitPath := c.GitPath
	if gitPath == "" {
		gitPath = "git"
	}

	ref := "HEAD"
	if branch != "" {
		ref = "refs/heads/" + branch
	}

	cmd := exec.CommandContext(ctx, gitPath, "ls-remote", remoteURL, ref)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: probe cancelled", pkgmodel.ErrCancelled)
		}
		return "", fmt.Errorf("%w: git ls-remote %s: %v", pkgmodel.ErrNetwork, remoteURL, err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("%w: git ls-remote %s returned no refs for %s", pkgmodel.ErrNetwork, remoteURL, ref)
}

// Clone clones remoteURL into destDir, which must not already exist.
// GIT_TERMINAL_PROMPT=0 so an auth prompt fails fast instead of hanging.
func (c *Client) Clone(ctx context.Context, remoteURL, destDir string) error {
	if err := c.run(ctx, "", "clone", "--", remoteURL, destDir); err != nil {
		return fmt.Errorf("%w: clone %s: %v", pkgmodel.ErrFetch, remoteURL, err)
	}
	return nil
}

// Fetch runs `git fetch` in repoDir, updating its remote-tracking refs
// without touching the working tree.
func (c *Client) Fetch(ctx context.Context, repoDir string) error {
	if err := c.run(ctx, repoDir, "fetch"); err != nil {
		return fmt.Errorf("%w: fetch in %s: %v", pkgmodel.ErrFetch, repoDir, err)
	}
	return nil
}

// ResetHard resets repoDir's working tree and index to ref (typically
// "HEAD" or "origin/<branch>"), discarding local modifications.
func (c *Client) ResetHard(ctx context.Context, repoDir, ref string) error {
	if err := c.run(ctx, repoDir, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("%w: reset --hard %s in %s: %v", pkgmodel.ErrFetch, ref, repoDir, err)
	}
	return nil
}

// CleanUntracked removes untracked files from repoDir, including those
// matched by .gitignore (`-x`). Untracked directories are left in place
// (no `-d`).
func (c *Client) CleanUntracked(ctx context.Context, repoDir string) error {
	if err := c.run(ctx, repoDir, "clean", "-fx"); err != nil {
		return fmt.Errorf("%w: clean -fx in %s: %v", pkgmodel.ErrFetch, repoDir, err)
	}
	return nil
}

// RevParse resolves ref (e.g. "HEAD") to its full commit hash in repoDir.
// Returns "" without error if repoDir has no commits yet.
func (c *Client) RevParse(ctx context.Context, repoDir, ref string) (string, error) {
	out, err := c.output(ctx, repoDir, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("%w: rev-parse %s in %s: %v", pkgmodel.ErrFetch, ref, repoDir, err)
	}
	return strings.TrimSpace(out), nil
}

// DiffNameOnly lists paths that differ between from and to in repoDir
// (e.g. the previously-reviewed commit and the freshly-fetched one), for
// the install pipeline's unseen-path review gate.
func (c *Client) DiffNameOnly(ctx context.Context, repoDir, from, to string) ([]string, error) {
	out, err := c.output(ctx, repoDir, "diff", "--name-only", from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: diff %s..%s in %s: %v", pkgmodel.ErrFetch, from, to, repoDir, err)
	}
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// Diff returns the full unified diff between from and to in repoDir, for
// the install pipeline's review gate (spec.md §4.2 "diff unseen paths
// through a pager").
func (c *Client) Diff(ctx context.Context, repoDir, from, to string) ([]byte, error) {
	out, err := c.output(ctx, repoDir, "diff", from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: diff %s..%s in %s: %v", pkgmodel.ErrFetch, from, to, repoDir, err)
	}
	return []byte(out), nil
}

func (c *Client) gitPath() string {
	if c.GitPath == "" {
		return "git"
	}
	return c.GitPath
}

// run invokes the git-compatible binary with args, in dir when non-empty,
// discarding stdout but surfacing stderr on failure.
func (c *Client) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.gitPath(), args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// output is like run but captures and returns stdout.
func (c *Client) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.gitPath(), args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return "", err
	}
	return string(out), nil
}

// githubRepo reports whether remoteURL is a github.com repository URL,
// returning its owner/repo.
func githubRepo(remoteURL string) (owner, repo string, ok bool) {
	raw := strings.TrimPrefix(remoteURL, "git+")
	u, err := url.Parse(raw)
	if err != nil || u.Host != "github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
