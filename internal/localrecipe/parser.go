// Package localrecipe parses the structured-text recipe metadata format
// described in spec.md §3 ("local base: a recipe-repository name + parsed
// recipe + selected sub-packages"): a flat key = value document with one
// pkgbase section followed by one or more pkgname sections, arch-suffixed
// keys for architecture-specific overrides, and repeatable keys for
// multi-valued fields (depends, source, sha256sums, ...). This is the
// build driver's `--printsrcinfo` output format; the build driver itself
// lives in internal/builddriver and is never invoked from here.
package localrecipe

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

const archIndependent = ""

// multiValuedKeys are keys that repeat (each occurrence appends to a list)
// rather than overwrite.
var multiValuedKeys = map[string]bool{
	"arch":         true,
	"license":      true,
	"depends":      true,
	"makedepends":  true,
	"checkdepends": true,
	"optdepends":   true,
	"provides":     true,
	"conflicts":    true,
	"source":       true,
	"sha256sums":   true,
	"sha512sums":   true,
	"b2sums":       true,
	"validpgpkeys": true,
	"pkgname":      true,
}

// section is one pkgbase or pkgname block: ordered key -> values, including
// arch-suffixed variants kept under their full key ("source_x86_64").
type section struct {
	name   string // "" for the pkgbase preamble
	fields map[string][]string
}

// Parse reads a .SRCINFO-format document and returns the base-level
// metadata plus one LocalPackage per pkgname section. repo and dir are
// threaded through into each LocalPackage; they are not part of the
// document itself.
func Parse(data []byte, repo, dir string) (pkgmodel.RecipeMeta, []pkgmodel.LocalPackage, error) {
	sections, err := splitSections(data)
	if err != nil {
		return pkgmodel.RecipeMeta{}, nil, err
	}
	if len(sections) == 0 || sections[0].name != "" {
		return pkgmodel.RecipeMeta{}, nil, fmt.Errorf("%w: recipe is missing a pkgbase section", pkgmodel.ErrParse)
	}

	base := sections[0]
	meta, err := buildMeta(base)
	if err != nil {
		return pkgmodel.RecipeMeta{}, nil, err
	}

	var pkgs []pkgmodel.LocalPackage
	for _, sec := range sections[1:] {
		pkg, err := buildPackage(meta, base, sec, repo, dir)
		if err != nil {
			return pkgmodel.RecipeMeta{}, nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	if len(pkgs) == 0 {
		return pkgmodel.RecipeMeta{}, nil, fmt.Errorf("%w: recipe %s has no pkgname sections", pkgmodel.ErrParse, meta.PkgBase)
	}

	return meta, pkgs, nil
}

func splitSections(data []byte) ([]section, error) {
	var sections []section
	cur := section{fields: map[string][]string{}}
	haveCur := false

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := splitKV(line)
		if err != nil {
			return nil, err
		}

		if key == "pkgbase" {
			if haveCur {
				sections = append(sections, cur)
			}
			cur = section{name: "", fields: map[string][]string{}}
			cur.fields["pkgbase"] = []string{value}
			haveCur = true
			continue
		}
		if key == "pkgname" {
			sections = append(sections, cur)
			cur = section{name: value, fields: map[string][]string{}}
			haveCur = true
			continue
		}

		cur.fields[key] = append(cur.fields[key], value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read recipe: %v", pkgmodel.ErrParse, err)
	}
	if haveCur {
		sections = append(sections, cur)
	}
	return sections, nil
}

func splitKV(line string) (string, string, error) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: malformed line %q", pkgmodel.ErrParse, line)
	}
	key := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", fmt.Errorf("%w: malformed line %q", pkgmodel.ErrParse, line)
	}
	return key, value, nil
}

func buildMeta(base section) (pkgmodel.RecipeMeta, error) {
	meta := pkgmodel.RecipeMeta{
		Sources:    map[string][]string{},
		Sha256Sums: map[string][]string{},
	}

	names := base.fields["pkgbase"]
	if len(names) != 1 || names[0] == "" {
		return meta, fmt.Errorf("%w: missing pkgbase value", pkgmodel.ErrParse)
	}
	meta.PkgBase = names[0]

	if v := firstField(base, "pkgver"); v != "" {
		meta.PkgVer = v
	}
	if v := firstField(base, "pkgrel"); v != "" {
		meta.PkgRel = v
	}
	if v := firstField(base, "epoch"); v != "" {
		e, err := strconv.Atoi(v)
		if err != nil {
			return meta, fmt.Errorf("%w: invalid epoch %q", pkgmodel.ErrParse, v)
		}
		meta.Epoch = e
	}
	meta.Arch = base.fields["arch"]
	meta.ValidPGPKeys = base.fields["validpgpkeys"]

	for key, values := range base.fields {
		if arch, ok := archSuffix(key, "source"); ok {
			meta.Sources[arch] = append(meta.Sources[arch], values...)
		}
		if arch, ok := archSuffix(key, "sha256sums"); ok {
			meta.Sha256Sums[arch] = append(meta.Sha256Sums[arch], values...)
		}
	}

	return meta, nil
}

func buildPackage(meta pkgmodel.RecipeMeta, base, pkg section, repo, dir string) (pkgmodel.LocalPackage, error) {
	if pkg.name == "" {
		return pkgmodel.LocalPackage{}, fmt.Errorf("%w: pkgname section missing a name", pkgmodel.ErrParse)
	}

	out := pkgmodel.LocalPackage{
		Name:    pkg.name,
		Base:    meta.PkgBase,
		Repo:    repo,
		Path:    dir,
		Version: versionString(meta),
	}

	depSpecs := func(field string) []pkgmodel.DepSpec {
		var specs []pkgmodel.DepSpec
		for _, raw := range mergedField(base, pkg, field) {
			specs = append(specs, parseDepSpec(raw))
		}
		return specs
	}

	out.Depends = depSpecs("depends")
	out.MakeDepends = depSpecs("makedepends")
	out.CheckDepends = depSpecs("checkdepends")
	out.OptDepends = depSpecs("optdepends")
	out.Provides = depSpecs("provides")
	out.Conflicts = depSpecs("conflicts")

	return out, nil
}

// mergedField returns a pkgname-level field, falling back to the pkgbase
// section's value (pkgbase fields apply to every sub-package unless
// overridden), per PKGBUILD split-package inheritance rules.
func mergedField(base, pkg section, field string) []string {
	if v, ok := pkg.fields[field]; ok {
		return v
	}
	return base.fields[field]
}

func firstField(sec section, key string) string {
	if v := sec.fields[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// archSuffix reports whether key is base or base_<arch>, returning the
// arch ("" for the arch-independent form) when it matches.
func archSuffix(key, base string) (string, bool) {
	if key == base {
		return archIndependent, true
	}
	if strings.HasPrefix(key, base+"_") {
		return key[len(base)+1:], true
	}
	return "", false
}

func versionString(meta pkgmodel.RecipeMeta) string {
	v := meta.PkgVer + "-" + meta.PkgRel
	if meta.Epoch > 0 {
		v = strconv.Itoa(meta.Epoch) + ":" + v
	}
	return v
}

// parseDepSpec parses a dependency entry ("name", "name>=1.2", or for
// optdepends "name: description") into a DepSpec. The description half of
// an optdepends entry is discarded; callers needing it should re-read the
// raw field.
func parseDepSpec(raw string) pkgmodel.DepSpec {
	raw = strings.SplitN(raw, ":", 2)[0]
	raw = strings.TrimSpace(raw)

	for _, op := range []struct {
		sym string
		op  pkgmodel.DepOp
	}{
		{">=", pkgmodel.OpGE},
		{"<=", pkgmodel.OpLE},
		{"=", pkgmodel.OpEQ},
		{">", pkgmodel.OpGT},
		{"<", pkgmodel.OpLT},
	} {
		if idx := strings.Index(raw, op.sym); idx >= 0 {
			return pkgmodel.DepSpec{
				Name: strings.TrimSpace(raw[:idx]),
				Op:   op.op,
				Ver:  strings.TrimSpace(raw[idx+len(op.sym):]),
			}
		}
	}
	return pkgmodel.DepSpec{Name: raw, Op: pkgmodel.OpAny}
}
