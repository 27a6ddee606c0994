package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/builddriver"
	"github.com/cairn-pm/cairn/internal/errmsg"
	"github.com/cairn-pm/cairn/internal/fetcher"
	"github.com/cairn-pm/cairn/internal/localbinrepo"
	"github.com/cairn-pm/cairn/internal/localrecipe"
	"github.com/cairn-pm/cairn/internal/log"
	"github.com/cairn-pm/cairn/internal/pipeline"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/progress"
	"github.com/cairn-pm/cairn/internal/resolver"
	"github.com/cairn-pm/cairn/internal/sandboxdriver"
	"github.com/cairn-pm/cairn/internal/signer"
)

var installFlags struct {
	needed         bool
	noDeps         bool
	noVerDep       bool
	checkDepends   bool
	noProvides     bool
	isolatedRoot   string
	batchInstall   bool
	failFast       bool
	cleanAfter     bool
	removeMakeDeps bool
	debugInstall   bool
	asDeps         bool
	asExplicit     bool
	skipReview     bool
	repoDir        string
	repoName       string
	pkgbuilds      []string
	signKeyID      string
	deleteSig      bool
}

var installCmd = &cobra.Command{
	Use:   "install [targets...]",
	Short: "Resolve and install targets from the sync databases, the recipe index, or local recipes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

func init() {
	f := installCmd.Flags()
	f.BoolVar(&installFlags.needed, "needed", false, "skip targets already installed at the resolved version")
	f.BoolVar(&installFlags.noDeps, "nodeps", false, "skip dependency resolution entirely")
	f.BoolVar(&installFlags.noVerDep, "no-ver-dep", false, "ignore version constraints when matching dependencies")
	f.BoolVar(&installFlags.checkDepends, "check-depends", false, "include checkdepends edges in the dependency walk")
	f.BoolVar(&installFlags.noProvides, "no-provides", false, "never substitute a providing package for a missing dependency")
	f.StringVar(&installFlags.isolatedRoot, "chroot", "", "build in an isolated chroot rooted at this directory instead of the host")
	f.BoolVar(&installFlags.batchInstall, "batchinstall", false, "defer a base's install until the whole batch is built")
	f.BoolVar(&installFlags.failFast, "fail-fast", false, "abort the whole batch on the first build failure")
	f.BoolVar(&installFlags.cleanAfter, "clean-after", false, "reset recipe checkouts to HEAD once the batch finishes")
	f.BoolVar(&installFlags.removeMakeDeps, "rmdeps", false, "remove transient make dependencies once the batch finishes")
	f.BoolVar(&installFlags.debugInstall, "debug-packages", false, "also queue generated -debug companion packages")
	f.BoolVar(&installFlags.asDeps, "asdeps", false, "install targets as dependencies rather than explicit")
	f.BoolVar(&installFlags.asExplicit, "asexplicit", false, "install targets as explicitly installed")
	f.BoolVar(&installFlags.skipReview, "skip-review", false, "do not pause for diff review before building")
	f.StringVar(&installFlags.repoDir, "repo-dir", "", "publish built artifacts into this local binary repo directory")
	f.StringVar(&installFlags.repoName, "repo-name", "", "local binary repo name (repo-add database name)")
	f.StringSliceVar(&installFlags.pkgbuilds, "pkgbuilds", nil, "local recipe repository directories to resolve targets against")
	f.StringVar(&installFlags.signKeyID, "sign-key", "", "GPG key ID to sign built artifacts with")
	f.BoolVar(&installFlags.deleteSig, "delete-sig", false, "replace any pre-existing detached signature")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	targets, err := pkgmodel.ParseTargets(args)
	if err != nil {
		printError(err, &errmsg.ErrorContext{Target: strings.Join(args, " ")})
		return errSilent(exitCodeFor(err))
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	localRepos := map[string]string{}
	for _, root := range installFlags.pkgbuilds {
		localRepos[filepath.Base(root)] = root
	}

	db, err := newDBView(ctx, a.spm, a.index, a.cache, localRepos)
	if err != nil {
		return err
	}

	flags := resolver.Flags{
		Needed:            installFlags.needed,
		NoDepVersion:      installFlags.noVerDep,
		NoDeps:            installFlags.noDeps,
		CheckDepends:      installFlags.checkDepends,
		Provides:          !installFlags.noProvides,
		MissingProvides:   !installFlags.noProvides,
		TargetProvides:    !installFlags.noProvides,
		NonTargetProvides: !installFlags.noProvides,
		AUR:               true,
		PKGBUILDS:         len(localRepos) > 0,
		REPO:              true,
	}

	resolveSpinner := progress.NewSpinner(os.Stderr)
	resolveSpinner.Start("Resolving dependencies...")
	actions, err := resolver.Resolve(targets, flags, db)
	resolveSpinner.Stop()
	if err != nil {
		printError(err, &errmsg.ErrorContext{Target: strings.Join(args, " ")})
		return errSilent(exitCodeFor(err))
	}

	if len(actions.Unneeded) > 0 {
		printInfof("already up to date: %s", strings.Join(actions.Unneeded, ", "))
	}

	if err := installDirect(ctx, a, actions.Install); err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}

	if len(actions.Build) == 0 {
		return nil
	}

	p, err := buildPipeline(a, db)
	if err != nil {
		return err
	}

	if a.priv != nil {
		keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
		defer stopKeepalive()
		go a.priv.Keepalive(keepaliveCtx, a.cfg.KeepaliveInterval)
	}

	buildSpinner := progress.NewSpinner(os.Stderr)
	buildSpinner.Start(fmt.Sprintf("Building %d package base(s)...", len(actions.Build)))
	report, err := p.Run(ctx, actions.Build)
	buildSpinner.StopWithMessage("Build batch finished")
	if err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}

	if failed := report.Failed(); len(failed) > 0 {
		for _, run := range failed {
			fmt.Printf("%s: %v\n", run.Base.Name(), run.Err)
		}
		return errSilent(ExitBuildFailed)
	}

	return nil
}

// installDirect installs every sync-db-resolvable entry in one pacman
// invocation, then fixes up install reasons the operator forced with
// --asdeps/--asexplicit.
func installDirect(ctx context.Context, a *app, entries []pkgmodel.InstallEntry) error {
	if len(entries) == 0 {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Pkg.Name)
	}

	if err := a.spm.Install(ctx, names); err != nil {
		return err
	}

	for _, e := range entries {
		reason := pkgmodel.ReasonDependency
		if e.Target {
			reason = pkgmodel.ReasonExplicit
		}
		if installFlags.asDeps {
			reason = pkgmodel.ReasonDependency
		}
		if installFlags.asExplicit {
			reason = pkgmodel.ReasonExplicit
		}
		if err := a.spm.SetInstallReason(ctx, e.Pkg.Name, reason); err != nil {
			log.Default().Warn("set install reason failed", "name", e.Pkg.Name, "error", err)
		}
	}

	return nil
}

func buildPipeline(a *app, db *dbView) (*pipeline.Pipeline, error) {
	seenPath := filepath.Join(a.cfg.StateDir, "seen.toml")
	seen, err := fetcher.LoadSeenStore(seenPath)
	if err != nil {
		return nil, err
	}

	var reviewer pipeline.Reviewer
	if installFlags.skipReview || a.user.SkipReview {
		reviewer = &pipeline.LocalReviewer{}
	} else {
		reviewer = &pipeline.PagerReviewer{VCS: a.vcs, Confirm: stdinConfirmer{}}
	}

	p := &pipeline.Pipeline{
		Fetcher:     &fetcher.Fetcher{CloneDir: a.cfg.CloneDir, VCS: a.vcs},
		IndexRemote: a.index,
		ParseRecipe: localrecipe.Parse,
		Seen:        seen,

		Reviewer:   reviewer,
		DepChecker: newDepChecker(a.spm, installFlags.repoDir),

		BuildDriver: &builddriver.Client{},
		Sandbox: &sandboxdriver.Client{
			Root:    installFlags.isolatedRoot,
			ROBinds: localbinrepo.AllFiles(installFlags.pkgbuilds),
		},

		Signer:    &signer.Client{},
		Publisher: a.repo,
		Installer: a.spm,

		Options: pipeline.Options{
			NoDeps:             installFlags.noDeps,
			NoVerDep:           installFlags.noVerDep,
			Needed:             installFlags.needed,
			IsolatedRoot:       installFlags.isolatedRoot != "",
			DeleteSig:          installFlags.deleteSig,
			SignKeyID:          installFlags.signKeyID,
			DebugInstall:       installFlags.debugInstall,
			RepoDir:            installFlags.repoDir,
			RepoName:           installFlags.repoName,
			BatchInstall:       installFlags.batchInstall || a.user.BatchInstall,
			FailFast:           installFlags.failFast,
			RemoveMakeDeps:     installFlags.removeMakeDeps,
			CleanAfter:         installFlags.cleanAfter || a.user.CleanAfter,
			DBLockPath:         "/var/lib/pacman/db.lck",
			DBLockPollInterval: a.cfg.DBLockPollInterval,
		},
	}

	if installFlags.asDeps {
		r := pkgmodel.ReasonDependency
		p.Options.ForceInstallReason = &r
	}
	if installFlags.asExplicit {
		r := pkgmodel.ReasonExplicit
		p.Options.ForceInstallReason = &r
	}

	return p, nil
}
