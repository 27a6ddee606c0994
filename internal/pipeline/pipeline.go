package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cairn-pm/cairn/internal/fetcher"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/sandboxdriver"
	"github.com/cairn-pm/cairn/internal/signer"
	"github.com/cairn-pm/cairn/internal/vercmp"
)

// Options is the flag set spec.md §4.2 and §5 describe.
type Options struct {
	NoDeps       bool // Reviewed -> DepsChecked: skip the dependency check entirely
	NoVerDep     bool // ignore version constraints during the dependency check
	Needed       bool // skip the build if existing artifacts already match the target version

	IsolatedRoot bool // build in an isolated root rather than the host

	DeleteSig   bool   // replace a pre-existing detached signature instead of keeping it
	SignKeyID   string // signer key ID; "" uses the signer's default

	DebugInstall bool // queue generated -debug companion packages too

	RepoDir   string   // local binary repo directory; "" disables publishing
	RepoName  string   // local binary repo name
	MoveMode  bool     // move artifacts into the repo instead of copying
	SyncRepos []string // repo names to refresh the SPM's view of after publish

	BatchInstall bool // allow deferring a base's install queue past DepsChecked for the next base
	FailFast     bool // abort the whole batch (not just dependents) on the first failure

	RemoveMakeDeps bool // uninstall transient make-only dependencies after the batch
	CleanAfter     bool // reset index-base checkouts to HEAD after the batch

	// ForceInstallReason overrides the natural target->explicit,
	// dependency->implicit assignment when the operator passed --asdeps
	// or --asexplicit explicitly.
	ForceInstallReason *pkgmodel.InstallReason

	DBLockPath         string
	DBLockPollInterval time.Duration
}

// Pipeline drives the per-base state machine over a resolver's build
// plan. Every field but Options is a narrow external collaborator; see
// collaborators.go.
type Pipeline struct {
	Fetcher     Fetcher
	IndexRemote IndexRemote
	ParseRecipe RecipeParser
	Seen        *fetcher.SeenStore

	Reviewer   Reviewer
	DepChecker DepChecker

	BuildDriver BuildDriver
	Sandbox     SandboxBuilder

	Signer     Signer
	Publisher  Publisher
	Installer  Installer

	Options Options

	// Now defaults to time.Now; overridable so tests can assert on
	// deterministic per-state timing history.
	Now func() time.Time

	allArtifacts []string // every artifact built so far this batch, for -I intra-batch injection
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Report is the outcome of a Run call.
type Report struct {
	Runs []*BaseRun
}

// Failed returns the bases that ended in StateFailed.
func (r *Report) Failed() []*BaseRun {
	var out []*BaseRun
	for _, run := range r.Runs {
		if run.State == StateFailed {
			out = append(out, run)
		}
	}
	return out
}

type queueEntry struct {
	Path    string
	PkgName string
	Target  bool
}

type pendingFlush struct {
	entries []queueEntry
	runs    []*BaseRun
}

// Run drives every base in builds through the state machine, in the
// order given (the resolver already topologically sorts Actions.Build),
// batching install-queue flushes per spec.md §4.2/§5. It returns a
// Report describing every base's final state even when it also returns
// an error; the error is non-nil exactly when at least one base failed.
func (p *Pipeline) Run(ctx context.Context, builds []pkgmodel.BuildEntry) (*Report, error) {
	runs := make([]*BaseRun, len(builds))
	for i, b := range builds {
		run := newRun(b.Base)
		run.Base.Make = b.Make
		run.Base.Target = b.Target
		runs[i] = run
	}

	var pending pendingFlush
	aborted := false

	flush := func() error {
		if len(pending.entries) == 0 {
			return nil
		}
		if err := waitForDBUnlock(ctx, p.Options.DBLockPath, p.Options.DBLockPollInterval); err != nil {
			return err
		}

		paths := make([]string, len(pending.entries))
		for i, e := range pending.entries {
			paths[i] = e.Path
		}
		if err := p.Installer.Upgrade(ctx, paths); err != nil {
			return fmt.Errorf("%w: flush install queue: %v", pkgmodel.ErrInstall, err)
		}

		for _, e := range pending.entries {
			reason := pkgmodel.ReasonDependency
			if e.Target {
				reason = pkgmodel.ReasonExplicit
			}
			if p.Options.ForceInstallReason != nil {
				reason = *p.Options.ForceInstallReason
			}
			if err := p.Installer.SetInstallReason(ctx, e.PkgName, reason); err != nil {
				return fmt.Errorf("%w: set install reason for %s: %v", pkgmodel.ErrInstall, e.PkgName, err)
			}
		}

		for _, r := range pending.runs {
			r.advance(StateInstalled, p.now())
		}
		pending = pendingFlush{}
		return nil
	}

	for _, run := range runs {
		if aborted {
			run.fail(fmt.Errorf("%w: batch aborted after an earlier failure", pkgmodel.ErrBuild), p.now())
			continue
		}

		if err := p.advanceToPublished(ctx, run); err != nil {
			run.fail(err, p.now())
			if p.Options.FailFast {
				aborted = true
			}
			continue
		}

		p.allArtifacts = append(p.allArtifacts, run.ArtifactPaths...)

		entries := p.queueEntries(run)
		run.advance(StateQueued, p.now())
		pending.entries = append(pending.entries, entries...)
		pending.runs = append(pending.runs, run)

		if !p.batchSafe() {
			if err := flush(); err != nil {
				failFlush(pending.runs, err, p.now())
				pending = pendingFlush{}
				if p.Options.FailFast {
					aborted = true
				}
			}
		}
	}

	if err := flush(); err != nil {
		failFlush(pending.runs, err, p.now())
	}

	if err := p.cleanup(ctx, runs); err != nil {
		return &Report{Runs: runs}, err
	}

	return &Report{Runs: runs}, p.failureSummary(runs)
}

func failFlush(runs []*BaseRun, err error, now time.Time) {
	for _, r := range runs {
		r.fail(err, now)
	}
}

// batchSafe reports whether a just-queued base's install can be deferred
// past the next base's DepsChecked transition. Nothing runs the
// resolver's conflict checks (InnerConflicts/ExternalConflicts) on the
// batch, so this collapses to the operator's BatchInstall toggle.
func (p *Pipeline) batchSafe() bool {
	return p.Options.BatchInstall
}

func (p *Pipeline) failureSummary(runs []*BaseRun) error {
	var failed []string
	for _, r := range runs {
		if r.State == StateFailed {
			failed = append(failed, r.Base.Name())
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", pkgmodel.ErrBuild, strings.Join(failed, ", "))
}

// advanceToPublished drives run from Pending through Published, the
// sequential per-base chain before cross-base queueing decisions apply.
func (p *Pipeline) advanceToPublished(ctx context.Context, run *BaseRun) error {
	name := run.Base.Name()

	if err := p.transitionFetched(ctx, run); err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	run.advance(StateFetched, p.now())

	approved, err := p.review(ctx, run)
	if err != nil {
		return fmt.Errorf("review %s: %w", name, err)
	}
	if !approved {
		return fmt.Errorf("%w: review declined for %s", pkgmodel.ErrFetch, name)
	}
	run.advance(StateReviewed, p.now())

	if err := p.transitionDepsChecked(ctx, run); err != nil {
		return fmt.Errorf("check dependencies for %s: %w", name, err)
	}
	run.advance(StateDepsChecked, p.now())

	if err := p.transitionBuilt(ctx, run); err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}
	run.advance(StateBuilt, p.now())

	if err := p.transitionSigned(ctx, run); err != nil {
		return fmt.Errorf("sign %s: %w", name, err)
	}
	run.advance(StateSigned, p.now())

	if err := p.transitionPublished(ctx, run); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	run.advance(StatePublished, p.now())
	return nil
}

// transitionFetched implements Pending -> Fetched. Local bases are
// already checked out by the operator; only index bases are cloned or
// fast-forwarded.
func (p *Pipeline) transitionFetched(ctx context.Context, run *BaseRun) error {
	name := run.Base.Name()

	if run.Base.Kind == pkgmodel.BaseKindLocal {
		dir := ""
		if len(run.Base.LocalPackages) > 0 {
			dir = run.Base.LocalPackages[0].Path
		}
		run.Dir = dir
		run.FetchResult = &fetcher.Result{Base: name, Dir: dir, Changed: false}
		return p.reparse(ctx, run)
	}

	url := p.IndexRemote.CloneURL(name)
	result, err := p.Fetcher.EnsureBase(ctx, name, url, "")
	if err != nil {
		return err
	}
	run.Dir = result.Dir
	run.FetchResult = result
	return p.reparse(ctx, run)
}

// reparse refreshes run.Packages straight from the checkout, matching
// spec.md §4.2's "reparse its recipe; refresh metadata" regardless of
// whether the base started out as an index or local one: once cloned,
// both are just a directory holding a recipe.
func (p *Pipeline) reparse(ctx context.Context, run *BaseRun) error {
	data, err := p.BuildDriver.PrintSrcinfo(ctx, run.Dir)
	if err != nil {
		return err
	}
	_, pkgs, err := p.ParseRecipe(data, run.Base.LocalRepo, run.Dir)
	if err != nil {
		return err
	}
	run.Packages = pkgs
	return nil
}

// review implements Fetched -> Reviewed.
func (p *Pipeline) review(ctx context.Context, run *BaseRun) (bool, error) {
	if run.Base.Kind == pkgmodel.BaseKindLocal {
		return (LocalReviewer{}).Review(ctx, run.Base.Name(), run.FetchResult)
	}

	if p.Seen != nil && p.Seen.IsSeen(run.Base.Name(), run.FetchResult.NewCommit) {
		return true, nil
	}

	approved, err := p.Reviewer.Review(ctx, run.Base.Name(), run.FetchResult)
	if err != nil || !approved {
		return approved, err
	}
	if p.Seen != nil {
		p.Seen.MarkSeen(run.Base.Name(), run.FetchResult.NewCommit)
	}
	return true, nil
}

// transitionDepsChecked implements Reviewed -> DepsChecked.
func (p *Pipeline) transitionDepsChecked(ctx context.Context, run *BaseRun) error {
	if p.Options.NoDeps {
		return nil
	}

	checkRepo := p.Options.RepoDir != ""
	var unsatisfied []string
	for _, pkg := range run.Packages {
		deps := make([]pkgmodel.DepSpec, 0, len(pkg.Depends)+len(pkg.MakeDepends)+len(pkg.CheckDepends))
		deps = append(deps, pkg.Depends...)
		deps = append(deps, pkg.MakeDepends...)
		deps = append(deps, pkg.CheckDepends...)

		for _, dep := range deps {
			ok, err := p.DepChecker.Satisfied(ctx, dep, checkRepo, p.Options.NoVerDep)
			if err != nil {
				return err
			}
			if !ok {
				unsatisfied = append(unsatisfied, dep.String())
			}
		}
	}

	if len(unsatisfied) > 0 {
		return fmt.Errorf("%w: %s: unsatisfied dependencies: %s", pkgmodel.ErrUnresolvable, run.Base.Name(), strings.Join(unsatisfied, ", "))
	}
	return nil
}

// transitionBuilt implements DepsChecked -> Built.
func (p *Pipeline) transitionBuilt(ctx context.Context, run *BaseRun) error {
	if p.Options.Needed {
		if paths, ok := p.artifactsUpToDate(ctx, run); ok {
			run.ArtifactPaths = paths
			return nil
		}
	}

	if err := p.BuildDriver.VerifySource(ctx, run.Dir); err != nil {
		return err
	}
	if err := p.BuildDriver.RefreshVersion(ctx, run.Dir, false); err != nil {
		return err
	}

	if p.Options.IsolatedRoot {
		if err := p.Sandbox.Build(ctx, run.Dir, p.allArtifacts, sandboxdriver.BuildFlags()); err != nil {
			return err
		}
	} else if err := p.BuildDriver.Build(ctx, run.Dir); err != nil {
		return err
	}

	paths, err := p.BuildDriver.PackageList(ctx, run.Dir)
	if err != nil {
		return err
	}
	run.ArtifactPaths = paths
	return nil
}

// artifactsUpToDate implements the NEEDED short circuit: every artifact
// the driver would produce already exists on disk at the base's current
// version.
func (p *Pipeline) artifactsUpToDate(ctx context.Context, run *BaseRun) ([]string, bool) {
	paths, err := p.BuildDriver.PackageList(ctx, run.Dir)
	if err != nil || len(paths) == 0 {
		return nil, false
	}

	version := run.Base.Version()
	if len(run.Packages) > 0 {
		version = run.Packages[0].Version
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, false
		}
		art, ok := ParseArtifactName(path)
		if !ok {
			return nil, false
		}
		if !vercmp.Equal(art.PkgVer+"-"+art.PkgRel, version) {
			return nil, false
		}
	}
	return paths, true
}

// transitionSigned implements Built -> Signed.
func (p *Pipeline) transitionSigned(ctx context.Context, run *BaseRun) error {
	if p.Signer == nil {
		return nil
	}

	for _, path := range run.ArtifactPaths {
		has, err := signer.HasSignature(path, statExists)
		if err != nil {
			return err
		}
		if has {
			if !p.Options.DeleteSig {
				continue
			}
			if err := os.Remove(path + ".sig"); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if err := p.Signer.DetachSign(ctx, path, p.Options.SignKeyID); err != nil {
			return err
		}
	}
	return nil
}

func statExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// transitionPublished implements Signed -> Published.
func (p *Pipeline) transitionPublished(ctx context.Context, run *BaseRun) error {
	if p.Publisher == nil || p.Options.RepoDir == "" {
		return nil
	}

	if err := p.Publisher.Add(ctx, p.Options.RepoDir, p.Options.RepoName, run.ArtifactPaths, p.Options.MoveMode); err != nil {
		return err
	}
	if err := waitForDBUnlock(ctx, p.Options.DBLockPath, p.Options.DBLockPollInterval); err != nil {
		return err
	}
	return p.Publisher.Refresh(ctx, p.Options.SyncRepos)
}

// queueEntries implements Published -> Queued: non-make packages plus,
// when enabled, their synthetic -debug companions. make-only bases
// contribute nothing (spec.md §4.2 "Debug-artifact handling").
func (p *Pipeline) queueEntries(run *BaseRun) []queueEntry {
	names := make([]string, len(run.Packages))
	for i, pkg := range run.Packages {
		names[i] = pkg.Name
	}

	byName := make(map[string]string, len(run.ArtifactPaths))
	var debugArtifacts []queueEntry
	for _, path := range run.ArtifactPaths {
		art, ok := ParseArtifactName(path)
		if !ok {
			continue
		}
		if parent, ok := debugParent(art.PkgName, names); ok {
			if run.Base.Make[parent] {
				continue
			}
			debugArtifacts = append(debugArtifacts, queueEntry{
				Path:    path,
				PkgName: art.PkgName,
				Target:  run.Base.Target[parent],
			})
			continue
		}
		byName[art.PkgName] = path
	}

	var entries []queueEntry
	for _, name := range names {
		if run.Base.Make[name] {
			continue
		}
		path, ok := byName[name]
		if !ok {
			continue
		}
		entries = append(entries, queueEntry{Path: path, PkgName: name, Target: run.Base.Target[name]})
	}

	if p.Options.DebugInstall {
		for _, d := range debugArtifacts {
			entries = append(entries, d)
		}
	}
	return entries
}

// cleanup implements spec.md §4.2's post-batch "Cleanup".
func (p *Pipeline) cleanup(ctx context.Context, runs []*BaseRun) error {
	if p.Options.RemoveMakeDeps {
		var makeOnly []string
		for _, run := range runs {
			if run.State != StateInstalled {
				continue
			}
			for name, isMake := range run.Base.Make {
				if isMake && !run.Base.Target[name] {
					makeOnly = append(makeOnly, name)
				}
			}
		}
		if len(makeOnly) > 0 {
			if err := p.Installer.Remove(ctx, makeOnly); err != nil {
				return fmt.Errorf("%w: remove transient make dependencies: %v", pkgmodel.ErrInstall, err)
			}
		}
	}

	if p.Options.CleanAfter {
		for _, run := range runs {
			if run.State != StateInstalled || run.Base.Kind != pkgmodel.BaseKindIndex {
				continue
			}
			if err := p.Fetcher.Reset(ctx, run.Base.Name()); err != nil {
				return err
			}
		}
	}

	return nil
}
