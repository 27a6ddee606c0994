package cache

import (
	"testing"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

func TestIndexPackageRoundTrip(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pkg := pkgmodel.IndexPackage{Name: "pacaur", Base: "pacaur", Version: "4.8.6-1"}
	if err := c.PutIndexPackage(pkg); err != nil {
		t.Fatalf("PutIndexPackage: %v", err)
	}

	got, ok := c.GetIndexPackage("pacaur")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Version != "4.8.6-1" {
		t.Fatalf("got version %q", got.Version)
	}

	if _, ok := c.GetIndexPackage("does-not-exist"); ok {
		t.Fatal("expected cache miss")
	}
}

func TestIndexPackagesForBase(t *testing.T) {
	c, _ := New()
	c.PutIndexPackage(pkgmodel.IndexPackage{Name: "pkgbase", Base: "pkgbase", Version: "1-1"})
	c.PutIndexPackage(pkgmodel.IndexPackage{Name: "pkgbase-doc", Base: "pkgbase", Version: "1-1"})
	c.PutIndexPackage(pkgmodel.IndexPackage{Name: "unrelated", Base: "unrelated", Version: "1-1"})

	pkgs, err := c.IndexPackagesForBase("pkgbase")
	if err != nil {
		t.Fatalf("IndexPackagesForBase: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages for base, got %d", len(pkgs))
	}
}

func TestBaseRoundTrip(t *testing.T) {
	c, _ := New()
	b := pkgmodel.Base{
		Kind:          pkgmodel.BaseKindLocal,
		LocalRepo:     "myrepo",
		LocalPackages: []pkgmodel.LocalPackage{{Name: "foo", Base: "foo", Version: "1-1"}},
	}
	if err := c.PutBase(b); err != nil {
		t.Fatalf("PutBase: %v", err)
	}
	got, ok := c.GetBase("foo")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.LocalRepo != "myrepo" {
		t.Fatalf("got repo %q", got.LocalRepo)
	}
}
