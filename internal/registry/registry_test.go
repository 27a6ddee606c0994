package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newTestServer(t *testing.T, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(marshalled(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfoParsesRecords(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"type": "multiinfo",
		"results": []map[string]any{
			{
				"Name":         "pacaur",
				"PackageBase":  "pacaur",
				"Version":      "4.8.6-1",
				"Maintainer":   "someone",
				"NumVotes":     42,
				"Popularity":   1.5,
				"Depends":      []string{"expac", "cower>=14"},
				"ValidPGPKeys": []string{"0123456789ABCDEF0123456789ABCDEF01234567"},
			},
		},
	})

	r := New(srv.URL, 5*time.Second)
	pkgs, err := r.Info(context.Background(), []string{"pacaur"})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("expected 1 package, got %d", len(pkgs))
	}
	p := pkgs[0]
	if p.Name != "pacaur" || p.Version != "4.8.6-1" || p.Votes != 42 {
		t.Fatalf("unexpected package: %+v", p)
	}
	if len(p.Depends) != 2 || p.Depends[1].Name != "cower" {
		t.Fatalf("unexpected depends: %+v", p.Depends)
	}
	if len(p.ValidSignerKey) != 1 {
		t.Fatalf("unexpected validpgpkeys: %+v", p.ValidSignerKey)
	}
}

func TestInfoEmptyNamesReturnsNil(t *testing.T) {
	r := New("http://example.invalid", time.Second)
	pkgs, err := r.Info(context.Background(), nil)
	if err != nil || pkgs != nil {
		t.Fatalf("expected nil, nil, got %v, %v", pkgs, err)
	}
}

func TestInfoErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"type":  "error",
		"error": "Too many package results.",
	})
	r := New(srv.URL, 5*time.Second)
	_, err := r.Info(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error for error envelope")
	}
}

func TestRefreshAndLoadNameCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("pacaur\nyay\nparu\n"))
	}))
	defer srv.Close()

	r := New(srv.URL, 5*time.Second)
	dir := t.TempDir()
	path := filepath.Join(dir, "packages.aur")

	if err := r.RefreshNameCache(context.Background(), path); err != nil {
		t.Fatalf("RefreshNameCache: %v", err)
	}

	names, err := LoadNameCache(path)
	if err != nil {
		t.Fatalf("LoadNameCache: %v", err)
	}
	if len(names) != 3 || names[0] != "pacaur" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestLoadNameCacheMissing(t *testing.T) {
	names, err := LoadNameCache(filepath.Join(t.TempDir(), "missing"))
	if err != nil || names != nil {
		t.Fatalf("expected nil, nil for missing file, got %v, %v", names, err)
	}
}

