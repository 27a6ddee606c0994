package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cairn-pm/cairn/internal/fetcher"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// --- fakes -----------------------------------------------------------

type fakeFetcher struct {
	results map[string]*fetcher.Result
	err     map[string]error
	resetCalls []string
}

func (f *fakeFetcher) EnsureBase(ctx context.Context, baseName, remoteURL, branch string) (*fetcher.Result, error) {
	if err, ok := f.err[baseName]; ok {
		return nil, err
	}
	if r, ok := f.results[baseName]; ok {
		return r, nil
	}
	return &fetcher.Result{Base: baseName, Dir: "/clone/" + baseName, Changed: false}, nil
}

func (f *fakeFetcher) Reset(ctx context.Context, baseName string) error {
	f.resetCalls = append(f.resetCalls, baseName)
	return nil
}

type fakeIndexRemote struct{}

func (fakeIndexRemote) CloneURL(baseName string) string { return "https://aur.example.com/" + baseName + ".git" }

type fakeBuildDriver struct {
	artifacts map[string][]string // dir -> artifact paths
	srcinfo   map[string][]byte
	buildErr  map[string]error
}

func (f *fakeBuildDriver) VerifySource(ctx context.Context, dir string) error { return nil }
func (f *fakeBuildDriver) RefreshVersion(ctx context.Context, dir string, cleanBuild bool) error {
	return nil
}
func (f *fakeBuildDriver) Build(ctx context.Context, dir string) error {
	if err, ok := f.buildErr[dir]; ok {
		return err
	}
	return nil
}
func (f *fakeBuildDriver) PackageList(ctx context.Context, dir string) ([]string, error) {
	return f.artifacts[dir], nil
}
func (f *fakeBuildDriver) PrintSrcinfo(ctx context.Context, dir string) ([]byte, error) {
	return f.srcinfo[dir], nil
}

type fakeSandbox struct {
	calls int
	seen  [][]string
}

func (f *fakeSandbox) Build(ctx context.Context, dir string, intraBatchArtifacts []string, buildFlags []string) error {
	f.calls++
	f.seen = append(f.seen, intraBatchArtifacts)
	return nil
}

type fakeSigner struct{ calls []string }

func (f *fakeSigner) DetachSign(ctx context.Context, artifactPath, keyID string) error {
	f.calls = append(f.calls, artifactPath)
	return nil
}

type fakePublisher struct {
	addCalls     int
	refreshCalls int
}

func (f *fakePublisher) Add(ctx context.Context, dir, name string, artifactPaths []string, moveMode bool) error {
	f.addCalls++
	return nil
}
func (f *fakePublisher) Refresh(ctx context.Context, repos []string) error {
	f.refreshCalls++
	return nil
}

type fakeInstaller struct {
	upgradeCalls  [][]string
	reasons       map[string]pkgmodel.InstallReason
	removed       []string
	upgradeErr    error
}

func (f *fakeInstaller) Upgrade(ctx context.Context, paths []string) error {
	f.upgradeCalls = append(f.upgradeCalls, paths)
	return f.upgradeErr
}
func (f *fakeInstaller) SetInstallReason(ctx context.Context, name string, reason pkgmodel.InstallReason) error {
	if f.reasons == nil {
		f.reasons = map[string]pkgmodel.InstallReason{}
	}
	f.reasons[name] = reason
	return nil
}
func (f *fakeInstaller) Remove(ctx context.Context, names []string) error {
	f.removed = append(f.removed, names...)
	return nil
}

type fakeDepChecker struct {
	unsatisfied map[string]bool
}

func (f *fakeDepChecker) Satisfied(ctx context.Context, dep pkgmodel.DepSpec, checkRepo, ignoreVersion bool) (bool, error) {
	return !f.unsatisfied[dep.Name], nil
}

type fakeReviewer struct {
	approve bool
	err     error
	calls   int
}

func (f *fakeReviewer) Review(ctx context.Context, base string, result *fetcher.Result) (bool, error) {
	f.calls++
	return f.approve, f.err
}

func parseRecipeFake(data []byte, repo, dir string) (pkgmodel.RecipeMeta, []pkgmodel.LocalPackage, error) {
	return pkgmodel.RecipeMeta{}, []pkgmodel.LocalPackage{
		{Name: string(data), Base: string(data), Repo: repo, Path: dir, Version: "1.0-1"},
	}, nil
}

// --- helpers -----------------------------------------------------------

func indexBuildEntry(name string) pkgmodel.BuildEntry {
	base := pkgmodel.Base{
		Kind:          pkgmodel.BaseKindIndex,
		IndexPackages: []pkgmodel.IndexPackage{{Name: name, Base: name, Version: "1.0-1"}},
		Make:          map[string]bool{},
		Target:        map[string]bool{name: true},
	}
	return pkgmodel.BuildEntry{Base: base, Make: base.Make, Target: base.Target}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestPipeline() (*Pipeline, *fakeFetcher, *fakeBuildDriver, *fakeInstaller) {
	bd := &fakeBuildDriver{
		artifacts: map[string][]string{},
		srcinfo:   map[string][]byte{},
		buildErr:  map[string]error{},
	}
	inst := &fakeInstaller{}
	ft := &fakeFetcher{results: map[string]*fetcher.Result{}, err: map[string]error{}}

	p := &Pipeline{
		Fetcher:     ft,
		IndexRemote: fakeIndexRemote{},
		ParseRecipe: parseRecipeFake,
		Reviewer:    &fakeReviewer{approve: true},
		DepChecker:  &fakeDepChecker{unsatisfied: map[string]bool{}},
		BuildDriver: bd,
		Sandbox:     &fakeSandbox{},
		Signer:      &fakeSigner{},
		Publisher:   &fakePublisher{},
		Installer:   inst,
		Now:         fixedClock(time.Unix(1700000000, 0)),
	}
	return p, ft, bd, inst
}

// --- tests -----------------------------------------------------------

func TestRun_SingleBaseFullySucceeds(t *testing.T) {
	p, ft, bd, inst := newTestPipeline()

	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: true, OldCommit: "a", NewCommit: "b"}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")
	bd.artifacts["/clone/yay-bin"] = []string{"/clone/yay-bin/yay-bin-1.0-1-x86_64.pkg.tar.zst"}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("yay-bin")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Runs) != 1 {
		t.Fatalf("len(Runs) = %d, want 1", len(report.Runs))
	}
	run := report.Runs[0]
	if run.State != StateInstalled {
		t.Fatalf("final state = %v, want installed", run.State)
	}
	if len(inst.upgradeCalls) != 1 || len(inst.upgradeCalls[0]) != 1 {
		t.Fatalf("Upgrade calls = %+v, want one call with one artifact", inst.upgradeCalls)
	}
	if inst.reasons["yay-bin"] != pkgmodel.ReasonExplicit {
		t.Fatalf("install reason = %v, want explicit (target)", inst.reasons["yay-bin"])
	}
}

func TestRun_LocalBaseSkipsReviewPrompt(t *testing.T) {
	p, _, bd, _ := newTestPipeline()
	reviewer := p.Reviewer.(*fakeReviewer)

	base := pkgmodel.Base{
		Kind:          pkgmodel.BaseKindLocal,
		LocalRepo:     "custom",
		LocalPackages: []pkgmodel.LocalPackage{{Name: "mypkg", Base: "mypkg", Path: "/home/user/myrecipe", Version: "1.0-1"}},
		Make:          map[string]bool{},
		Target:        map[string]bool{"mypkg": true},
	}
	bd.srcinfo["/home/user/myrecipe"] = []byte("mypkg")
	bd.artifacts["/home/user/myrecipe"] = []string{"/home/user/myrecipe/mypkg-1.0-1-x86_64.pkg.tar.zst"}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{{Base: base, Make: base.Make, Target: base.Target}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if reviewer.calls != 0 {
		t.Fatalf("reviewer.calls = %d, want 0 (local bases bypass the configured Reviewer)", reviewer.calls)
	}
	if report.Runs[0].State != StateInstalled {
		t.Fatalf("final state = %v, want installed", report.Runs[0].State)
	}
}

func TestRun_SeenCommitSkipsReview(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	reviewer := p.Reviewer.(*fakeReviewer)
	reviewer.approve = false // would reject if ever asked

	seen := fetcher.NewSeenStore()
	seen.MarkSeen("yay-bin", "b")
	p.Seen = seen

	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: true, OldCommit: "a", NewCommit: "b"}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")
	bd.artifacts["/clone/yay-bin"] = []string{"/clone/yay-bin/yay-bin-1.0-1-x86_64.pkg.tar.zst"}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("yay-bin")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if reviewer.calls != 0 {
		t.Fatalf("reviewer.calls = %d, want 0 (commit already marked seen)", reviewer.calls)
	}
	if report.Runs[0].State != StateInstalled {
		t.Fatalf("final state = %v, want installed", report.Runs[0].State)
	}
}

func TestRun_ReviewDeclinedFailsBase(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	p.Reviewer.(*fakeReviewer).approve = false

	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: true, OldCommit: "a", NewCommit: "b"}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("yay-bin")})
	if err == nil {
		t.Fatal("expected an error when the review is declined")
	}
	if report.Runs[0].State != StateFailed {
		t.Fatalf("final state = %v, want failed", report.Runs[0].State)
	}
}

func TestRun_UnsatisfiedDependencyFailsBase(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	p.DepChecker = &fakeDepChecker{unsatisfied: map[string]bool{"missing-lib": true}}

	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: false}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")

	entry := indexBuildEntry("yay-bin")
	// Smuggle a dependency into the reparsed package list via ParseRecipe's
	// fake: swap it out to return the dependency the DepChecker rejects.
	p.ParseRecipe = func(data []byte, repo, dir string) (pkgmodel.RecipeMeta, []pkgmodel.LocalPackage, error) {
		return pkgmodel.RecipeMeta{}, []pkgmodel.LocalPackage{
			{Name: "yay-bin", Base: "yay-bin", Repo: repo, Path: dir, Version: "1.0-1",
				Depends: []pkgmodel.DepSpec{{Name: "missing-lib"}}},
		}, nil
	}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{entry})
	if err == nil {
		t.Fatal("expected an error from an unsatisfied dependency")
	}
	if report.Runs[0].State != StateFailed {
		t.Fatalf("final state = %v, want failed", report.Runs[0].State)
	}
}

func TestRun_NeededBuildsWhenArtifactMissing(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	p.Options.Needed = true
	bd.buildErr["/clone/yay-bin"] = errors.New("should not have been called")

	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: false}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")
	bd.artifacts["/clone/yay-bin"] = []string{"/nonexistent/yay-bin-1.0-1-x86_64.pkg.tar.zst"}

	// artifactsUpToDate stats the path; since it doesn't exist on disk,
	// Needed falls through to a real build, which hits the forced build
	// error above. The short circuit for artifacts that do exist is not
	// exercised here.
	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("yay-bin")})
	if err == nil {
		t.Fatal("expected the forced build error since the stale artifact path doesn't exist on disk")
	}
	if report.Runs[0].State != StateFailed {
		t.Fatalf("final state = %v, want failed", report.Runs[0].State)
	}
}

func TestRun_MakeOnlyBaseExcludedFromInstallQueue(t *testing.T) {
	p, ft, bd, inst := newTestPipeline()

	base := pkgmodel.Base{
		Kind:          pkgmodel.BaseKindIndex,
		IndexPackages: []pkgmodel.IndexPackage{{Name: "cmake", Base: "cmake", Version: "3.0-1"}},
		Make:          map[string]bool{"cmake": true},
		Target:        map[string]bool{},
	}
	ft.results["cmake"] = &fetcher.Result{Base: "cmake", Dir: "/clone/cmake", Changed: false}
	bd.srcinfo["/clone/cmake"] = []byte("cmake")
	bd.artifacts["/clone/cmake"] = []string{"/clone/cmake/cmake-3.0-1-x86_64.pkg.tar.zst"}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{{Base: base, Make: base.Make, Target: base.Target}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(inst.upgradeCalls) != 0 {
		t.Fatalf("Upgrade calls = %+v, want none for a make-only base", inst.upgradeCalls)
	}
	if report.Runs[0].State != StateQueued && report.Runs[0].State != StateInstalled {
		t.Fatalf("final state = %v", report.Runs[0].State)
	}
}

func TestRun_MakeOnlyBaseDebugCompanionExcludedFromInstallQueue(t *testing.T) {
	p, ft, bd, inst := newTestPipeline()
	p.Options.DebugInstall = true

	base := pkgmodel.Base{
		Kind:          pkgmodel.BaseKindIndex,
		IndexPackages: []pkgmodel.IndexPackage{{Name: "cmake", Base: "cmake", Version: "3.0-1"}},
		Make:          map[string]bool{"cmake": true},
		Target:        map[string]bool{},
	}
	ft.results["cmake"] = &fetcher.Result{Base: "cmake", Dir: "/clone/cmake", Changed: false}
	bd.srcinfo["/clone/cmake"] = []byte("cmake")
	bd.artifacts["/clone/cmake"] = []string{
		"/clone/cmake/cmake-3.0-1-x86_64.pkg.tar.zst",
		"/clone/cmake/cmake-debug-3.0-1-x86_64.pkg.tar.zst",
	}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{{Base: base, Make: base.Make, Target: base.Target}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(inst.upgradeCalls) != 0 {
		t.Fatalf("Upgrade calls = %+v, want none: cmake and its -debug companion are both make-only", inst.upgradeCalls)
	}
	if report.Runs[0].State != StateQueued && report.Runs[0].State != StateInstalled {
		t.Fatalf("final state = %v", report.Runs[0].State)
	}
}

func TestRun_BatchInstallDefersFlushAcrossBases(t *testing.T) {
	p, ft, bd, inst := newTestPipeline()
	p.Options.BatchInstall = true

	for _, name := range []string{"base-a", "base-b"} {
		ft.results[name] = &fetcher.Result{Base: name, Dir: "/clone/" + name, Changed: false}
		bd.srcinfo["/clone/"+name] = []byte(name)
		bd.artifacts["/clone/"+name] = []string{"/clone/" + name + "/" + name + "-1.0-1-x86_64.pkg.tar.zst"}
	}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("base-a"), indexBuildEntry("base-b")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(inst.upgradeCalls) != 1 {
		t.Fatalf("Upgrade calls = %d, want exactly 1 (both bases flushed together)", len(inst.upgradeCalls))
	}
	if len(inst.upgradeCalls[0]) != 2 {
		t.Fatalf("flushed artifact count = %d, want 2", len(inst.upgradeCalls[0]))
	}
	for _, run := range report.Runs {
		if run.State != StateInstalled {
			t.Fatalf("base %s final state = %v, want installed", run.Base.Name(), run.State)
		}
	}
}

func TestRun_FailFastAbortsRemainingBatch(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	p.Options.FailFast = true
	p.Reviewer.(*fakeReviewer).approve = false // base-a will fail at review

	for _, name := range []string{"base-a", "base-b"} {
		ft.results[name] = &fetcher.Result{Base: name, Dir: "/clone/" + name, Changed: true, OldCommit: "a", NewCommit: "b"}
		bd.srcinfo["/clone/"+name] = []byte(name)
	}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("base-a"), indexBuildEntry("base-b")})
	if err == nil {
		t.Fatal("expected an error from the batch")
	}
	if report.Runs[0].State != StateFailed {
		t.Fatalf("base-a final state = %v, want failed", report.Runs[0].State)
	}
	if report.Runs[1].State != StateFailed {
		t.Fatalf("base-b final state = %v, want failed (aborted by FailFast)", report.Runs[1].State)
	}
}

func TestRun_WithoutFailFastIsolatesFailureToDependent(t *testing.T) {
	p, ft, bd, inst := newTestPipeline()

	ft.err["base-a"] = errors.New("network unreachable")

	ft.results["base-b"] = &fetcher.Result{Base: "base-b", Dir: "/clone/base-b", Changed: false}
	bd.srcinfo["/clone/base-b"] = []byte("base-b")
	bd.artifacts["/clone/base-b"] = []string{"/clone/base-b/base-b-1.0-1-x86_64.pkg.tar.zst"}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("base-a"), indexBuildEntry("base-b")})
	if err == nil {
		t.Fatal("expected an error since base-a failed")
	}
	if report.Runs[0].State != StateFailed {
		t.Fatalf("base-a final state = %v, want failed", report.Runs[0].State)
	}
	if report.Runs[1].State != StateInstalled {
		t.Fatalf("base-b final state = %v, want installed (independent of base-a's failure)", report.Runs[1].State)
	}
	if len(inst.upgradeCalls) != 1 {
		t.Fatalf("Upgrade calls = %d, want 1 for base-b alone", len(inst.upgradeCalls))
	}
}

func TestRun_RemoveMakeDepsCleansUpAfterBatch(t *testing.T) {
	p, ft, bd, inst := newTestPipeline()
	p.Options.RemoveMakeDeps = true

	base := pkgmodel.Base{
		Kind: pkgmodel.BaseKindIndex,
		IndexPackages: []pkgmodel.IndexPackage{
			{Name: "yay-bin", Base: "yay-bin", Version: "1.0-1"},
			{Name: "go", Base: "yay-bin", Version: "1.0-1"},
		},
		Make:   map[string]bool{"go": true},
		Target: map[string]bool{"yay-bin": true},
	}
	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: false}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")
	p.ParseRecipe = func(data []byte, repo, dir string) (pkgmodel.RecipeMeta, []pkgmodel.LocalPackage, error) {
		return pkgmodel.RecipeMeta{}, []pkgmodel.LocalPackage{
			{Name: "yay-bin", Base: "yay-bin", Repo: repo, Path: dir, Version: "1.0-1"},
			{Name: "go", Base: "yay-bin", Repo: repo, Path: dir, Version: "1.0-1"},
		}, nil
	}
	bd.artifacts["/clone/yay-bin"] = []string{
		"/clone/yay-bin/yay-bin-1.0-1-x86_64.pkg.tar.zst",
		"/clone/yay-bin/go-1.0-1-x86_64.pkg.tar.zst",
	}

	report, err := p.Run(context.Background(), []pkgmodel.BuildEntry{{Base: base, Make: base.Make, Target: base.Target}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Runs[0].State != StateInstalled {
		t.Fatalf("final state = %v, want installed", report.Runs[0].State)
	}
	if len(inst.removed) != 1 || inst.removed[0] != "go" {
		t.Fatalf("removed = %v, want [go]", inst.removed)
	}
}

func TestRun_CleanAfterResetsIndexBaseCheckouts(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	p.Options.CleanAfter = true

	ft.results["yay-bin"] = &fetcher.Result{Base: "yay-bin", Dir: "/clone/yay-bin", Changed: false}
	bd.srcinfo["/clone/yay-bin"] = []byte("yay-bin")
	bd.artifacts["/clone/yay-bin"] = []string{"/clone/yay-bin/yay-bin-1.0-1-x86_64.pkg.tar.zst"}

	_, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("yay-bin")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(ft.resetCalls) != 1 || ft.resetCalls[0] != "yay-bin" {
		t.Fatalf("resetCalls = %v, want [yay-bin]", ft.resetCalls)
	}
}

func TestRun_IsolatedRootPassesIntraBatchArtifacts(t *testing.T) {
	p, ft, bd, _ := newTestPipeline()
	p.Options.IsolatedRoot = true
	sandbox := p.Sandbox.(*fakeSandbox)

	for _, name := range []string{"base-a", "base-b"} {
		ft.results[name] = &fetcher.Result{Base: name, Dir: "/clone/" + name, Changed: false}
		bd.srcinfo["/clone/"+name] = []byte(name)
		bd.artifacts["/clone/"+name] = []string{"/clone/" + name + "/" + name + "-1.0-1-x86_64.pkg.tar.zst"}
	}

	_, err := p.Run(context.Background(), []pkgmodel.BuildEntry{indexBuildEntry("base-a"), indexBuildEntry("base-b")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sandbox.calls != 2 {
		t.Fatalf("sandbox calls = %d, want 2", sandbox.calls)
	}
	if len(sandbox.seen[0]) != 0 {
		t.Fatalf("base-a should see no intra-batch artifacts yet, got %v", sandbox.seen[0])
	}
	if len(sandbox.seen[1]) != 1 {
		t.Fatalf("base-b should see base-a's artifact, got %v", sandbox.seen[1])
	}
}
