package registry

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// namesEndpoint serves a newline-delimited list of every package name the
// index carries, used to populate the local tab-completion/fuzzy-search
// cache without paging through the search RPC.
const namesEndpoint = "/packages.cairn"

// RefreshNameCache downloads the full package-name list and writes it
// atomically to path, matching the develop tracker's write-to-tmp-then-
// rename pattern.
func (r *Registry) RefreshNameCache(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+namesEndpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", pkgmodel.ErrNetwork, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgmodel.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: name list request returned status %d", pkgmodel.ErrNetwork, resp.StatusCode)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create cache directory: %v", pkgmodel.ErrFetch, err)
	}

	tmp, err := os.CreateTemp(dir, ".packages.aur.tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", pkgmodel.ErrFetch, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.ReadFrom(resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write name cache: %v", pkgmodel.ErrFetch, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close name cache: %v", pkgmodel.ErrFetch, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename name cache: %v", pkgmodel.ErrFetch, err)
	}
	return nil
}

// LoadNameCache reads a previously-refreshed name cache from disk. A
// missing file returns an empty, non-error result.
func LoadNameCache(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open name cache: %v", pkgmodel.ErrFetch, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read name cache: %v", pkgmodel.ErrFetch, err)
	}
	return names, nil
}
