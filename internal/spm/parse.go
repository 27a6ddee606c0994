package spm

import (
	"bufio"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// splitBlocks splits `-Qi`/`-Si` output into one block per package,
// blocks being separated by a blank line.
func splitBlocks(out string) []map[string][]string {
	var blocks []map[string][]string
	cur := map[string][]string{}
	lastKey := ""

	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, cur)
			cur = map[string][]string{}
			lastKey = ""
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		// A continuation line (no "Key :" marker, or it starts indented)
		// belongs to the previous key's value, as pacman wraps long
		// fields like Description and Depends On across lines.
		if !strings.HasPrefix(line, " ") {
			if key, val, ok := splitColon(line); ok {
				cur[key] = append(cur[key], val)
				lastKey = key
				continue
			}
		}
		if lastKey != "" {
			cur[lastKey][len(cur[lastKey])-1] += " " + strings.TrimSpace(line)
		}
	}
	flush()
	return blocks
}

func splitColon(line string) (key, value string, ok bool) {
	idx := strings.Index(line, " : ")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+3:]), true
}

func parseBlocks(out string) []pkgmodel.SPMPackage {
	blocks := splitBlocks(out)
	pkgs := make([]pkgmodel.SPMPackage, 0, len(blocks))
	for _, b := range blocks {
		pkgs = append(pkgs, parseBlock(b))
	}
	return pkgs
}

func parseBlock(b map[string][]string) pkgmodel.SPMPackage {
	pkg := pkgmodel.SPMPackage{
		Name:    first(b, "Name"),
		Version: first(b, "Version"),
		Repo:    first(b, "Repository"),
	}
	pkg.Depends = depList(b, "Depends On")
	pkg.Provides = depList(b, "Provides")
	pkg.Conflicts = depList(b, "Conflicts With")

	if first(b, "Install Reason") == "Installed as a dependency for another package" {
		pkg.Reason = pkgmodel.ReasonDependency
	}
	return pkg
}

func first(b map[string][]string, key string) string {
	v := b[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// depList parses a space-separated list field ("Depends On", "Provides",
// "Conflicts With"), where pacman prints the literal "None" for an empty
// list.
func depList(b map[string][]string, key string) []pkgmodel.DepSpec {
	raw := first(b, key)
	if raw == "" || raw == "None" {
		return nil
	}
	var specs []pkgmodel.DepSpec
	for _, tok := range strings.Fields(raw) {
		specs = append(specs, parseDepToken(tok))
	}
	return specs
}

func parseDepToken(tok string) pkgmodel.DepSpec {
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
		if idx := strings.Index(tok, op.sym); idx >= 0 {
			return pkgmodel.DepSpec{
				Name: tok[:idx],
				Op:   op.op,
				Ver:  tok[idx+len(op.sym):],
			}
		}
	}
	return pkgmodel.DepSpec{Name: tok, Op: pkgmodel.OpAny}
}
