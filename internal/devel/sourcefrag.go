package devel

import "strings"

// RemoteRef is an extracted VCS remote reference from a recipe's source
// array entry.
type RemoteRef struct {
	URL    string
	Branch string // "" means HEAD
}

// ExtractRemoteRefs parses the source-URL fragment forms spec.md §4.3
// names: "[+prefix+]git://host/path[#branch=NAME]", ignoring "#commit="
// and "#tag=" fragments, which pin a revision rather than track one.
func ExtractRemoteRefs(sources []string) []RemoteRef {
	var out []RemoteRef
	for _, src := range sources {
		if ref, ok := extractOne(src); ok {
			out = append(out, ref)
		}
	}
	return out
}

func extractOne(src string) (RemoteRef, bool) {
	// Drop a "name::" destination-filename prefix if present.
	if idx := strings.Index(src, "::"); idx >= 0 {
		src = src[idx+2:]
	}

	rest, ok := stripVCSPrefix(src)
	if !ok {
		return RemoteRef{}, false
	}

	url := rest
	branch := ""
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		url = rest[:idx]
		fragment := rest[idx+1:]
		if strings.HasPrefix(fragment, "commit=") || strings.HasPrefix(fragment, "tag=") {
			return RemoteRef{}, false
		}
		if b, ok := strings.CutPrefix(fragment, "branch="); ok {
			branch = b
		}
	}

	return RemoteRef{URL: url, Branch: branch}, true
}

// stripVCSPrefix recognizes the build driver's "+git+<url>" and
// "git+<scheme>://" source-array markers for a VCS source fetched over
// git, stripping the marker down to the URL git itself understands. A
// bare "git://" source needs no stripping.
func stripVCSPrefix(src string) (rest string, ok bool) {
	if trimmed, ok := strings.CutPrefix(src, "+git+"); ok {
		return trimmed, true
	}
	if trimmed, ok := strings.CutPrefix(src, "git+"); ok {
		return trimmed, true
	}
	if strings.HasPrefix(src, "git://") {
		return src, true
	}
	return "", false
}
