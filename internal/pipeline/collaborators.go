package pipeline

import (
	"context"

	"github.com/cairn-pm/cairn/internal/fetcher"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Fetcher is the narrow subset of internal/fetcher.Fetcher the Pending ->
// Fetched transition drives.
type Fetcher interface {
	EnsureBase(ctx context.Context, baseName, remoteURL, branch string) (*fetcher.Result, error)
	// Reset restores baseName's checkout to its current HEAD and removes
	// untracked files, for the post-batch clean-after option.
	Reset(ctx context.Context, baseName string) error
}

// IndexRemote resolves an index base's dedicated recipe-index git remote,
// so the Pending -> Fetched transition knows what to clone/fetch. Local
// bases need no such lookup; they're already checked out on disk.
type IndexRemote interface {
	CloneURL(baseName string) string
}

// RecipeParser re-parses a base's recipe after a fetch or pkgver refresh,
// matching internal/localrecipe.Parse's signature so a *Pipeline can be
// wired directly to it.
type RecipeParser func(data []byte, repo, dir string) (pkgmodel.RecipeMeta, []pkgmodel.LocalPackage, error)

// BuildDriver is the narrow subset of internal/builddriver.Client the
// DepsChecked -> Built transition drives in host mode, plus the
// introspection calls (PackageList, PrintSrcinfo) it needs regardless of
// build mode.
type BuildDriver interface {
	VerifySource(ctx context.Context, dir string) error
	RefreshVersion(ctx context.Context, dir string, cleanBuild bool) error
	Build(ctx context.Context, dir string) error
	PackageList(ctx context.Context, dir string) ([]string, error)
	PrintSrcinfo(ctx context.Context, dir string) ([]byte, error)
}

// SandboxBuilder is the narrow subset of internal/sandboxdriver.Client the
// DepsChecked -> Built transition drives in isolated-root mode.
type SandboxBuilder interface {
	Build(ctx context.Context, dir string, intraBatchArtifacts []string, buildFlags []string) error
}

// Signer is the narrow subset of internal/signer.Client the Built ->
// Signed transition drives.
type Signer interface {
	DetachSign(ctx context.Context, artifactPath, keyID string) error
}

// Publisher is the narrow subset of internal/localbinrepo.Client the
// Signed -> Published transition drives.
type Publisher interface {
	Add(ctx context.Context, dir, name string, artifactPaths []string, moveMode bool) error
	Refresh(ctx context.Context, repos []string) error
}

// Installer is the narrow subset of internal/spm.Client the Queued ->
// Installed transition, and install-reason assignment, drive.
type Installer interface {
	Upgrade(ctx context.Context, paths []string) error
	SetInstallReason(ctx context.Context, name string, reason pkgmodel.InstallReason) error
	// Remove uninstalls names, for the post-batch transient make-only
	// dependency cleanup.
	Remove(ctx context.Context, names []string) error
}

// DepChecker reports whether dep is already satisfied, so the Reviewed ->
// DepsChecked transition can reject a base with an unmet requirement
// without itself knowing how the local SPM database or a local binary
// repo's listing are consulted (spec.md §4.2 "reject if any dep is
// unsatisfied both in the local DB and... the repo"). ignoreVersion
// mirrors the resolver's NoVerDep flag.
type DepChecker interface {
	Satisfied(ctx context.Context, dep pkgmodel.DepSpec, checkRepo, ignoreVersion bool) (bool, error)
}

// Reviewer presents a fetched base's changes for operator confirmation
// (spec.md §4.2 "Fetched -> Reviewed").
type Reviewer interface {
	Review(ctx context.Context, base string, result *fetcher.Result) (approved bool, err error)
}

// Confirmer asks the operator a yes/no question, used by the stock
// Reviewer implementations once a diff or file manager has been shown.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}
