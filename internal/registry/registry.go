// Package registry queries the recipe index over HTTPS, per spec.md §6:
// the remote catalogue returns per-package "JSON-ish" records (the
// Glossary's term for responses that mix typed and stringly-typed fields
// across index versions), which this package parses leniently with gjson
// rather than a single fixed struct per endpoint generation.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cairn-pm/cairn/internal/httputil"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

const (
	// DefaultBaseURL is the default recipe index endpoint.
	DefaultBaseURL = "https://recipes.cairn-pm.org"

	// EnvBaseURL overrides the recipe index endpoint.
	EnvBaseURL = "CAIRN_REGISTRY_URL"

	infoEndpoint   = "/rpc/v5/info"
	searchEndpoint = "/rpc/v5/search"
)

// Registry queries the recipe index's info/search RPC endpoints.
type Registry struct {
	BaseURL string
	client  *http.Client
}

// New creates a Registry using the hardened shared HTTP client, with the
// given timeout.
func New(baseURL string, timeout time.Duration) *Registry {
	if baseURL == "" {
		baseURL = os.Getenv(EnvBaseURL)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	opts := httputil.DefaultOptions()
	opts.Timeout = timeout

	return &Registry{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httputil.NewSecureClient(opts),
	}
}

// Info fetches the index records for one or more package names in a
// single batch request.
func (r *Registry) Info(ctx context.Context, names []string) ([]pkgmodel.IndexPackage, error) {
	if len(names) == 0 {
		return nil, nil
	}

	q := url.Values{}
	for _, n := range names {
		q.Add("arg[]", n)
	}

	body, err := r.get(ctx, infoEndpoint, q)
	if err != nil {
		return nil, err
	}
	return parseResults(body)
}

// CloneURL returns the per-base recipe-index git remote the install
// pipeline's fetcher clones/fetches (spec.md §4.2 "Pending -> Fetched"):
// one dedicated repository per package base, named after it.
func (r *Registry) CloneURL(baseName string) string {
	return r.BaseURL + "/" + baseName + ".git"
}

// Search queries the index's free-text search endpoint, restricted to the
// given field ("name-desc" or "maintainer"; empty means the default).
func (r *Registry) Search(ctx context.Context, term, by string) ([]pkgmodel.IndexPackage, error) {
	q := url.Values{}
	q.Set("arg", term)
	if by != "" {
		q.Set("by", by)
	}

	body, err := r.get(ctx, searchEndpoint, q)
	if err != nil {
		return nil, err
	}
	return parseResults(body)
}

func (r *Registry) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	full := r.BaseURL + path
	if len(q) > 0 {
		full += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", pkgmodel.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgmodel.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", pkgmodel.ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: rate limit exceeded querying recipe index", pkgmodel.ErrNetwork)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: recipe index returned status %d", pkgmodel.ErrNetwork, resp.StatusCode)
	}

	return data, nil
}

// parseResults interprets the RPC envelope { "type": ..., "results": [...] }
// leniently: a results entry missing an expected field is simply zero-valued
// rather than rejecting the whole batch, matching the index's historical
// habit of adding optional fields without a version bump.
func parseResults(body []byte) ([]pkgmodel.IndexPackage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: recipe index returned invalid JSON", pkgmodel.ErrParse)
	}

	root := gjson.ParseBytes(body)
	if errMsg := root.Get("error").String(); errMsg != "" {
		return nil, fmt.Errorf("%w: recipe index error: %s", pkgmodel.ErrFetch, errMsg)
	}

	var out []pkgmodel.IndexPackage
	for _, rec := range root.Get("results").Array() {
		out = append(out, parseRecord(rec))
	}
	return out, nil
}

func parseRecord(rec gjson.Result) pkgmodel.IndexPackage {
	p := pkgmodel.IndexPackage{
		Name:       rec.Get("Name").String(),
		Base:       rec.Get("PackageBase").String(),
		Version:    rec.Get("Version").String(),
		Maintainer: rec.Get("Maintainer").String(),
		Votes:      int(rec.Get("NumVotes").Int()),
		Popularity: rec.Get("Popularity").Float(),
	}
	if p.Base == "" {
		p.Base = p.Name
	}

	if outOfDate := rec.Get("OutOfDate"); outOfDate.Exists() && outOfDate.Type != gjson.Null {
		t := time.Unix(outOfDate.Int(), 0).UTC()
		p.OutOfDate = &t
	}

	p.Depends = depList(rec.Get("Depends"))
	p.MakeDepends = depList(rec.Get("MakeDepends"))
	p.CheckDepends = depList(rec.Get("CheckDepends"))
	p.OptDepends = depList(rec.Get("OptDepends"))
	p.Provides = depList(rec.Get("Provides"))
	p.Conflicts = depList(rec.Get("Conflicts"))

	for _, k := range rec.Get("ValidPGPKeys").Array() {
		p.ValidSignerKey = append(p.ValidSignerKey, k.String())
	}

	return p
}

// depList parses a JSON array of raw dep strings ("name>=1.2") into
// DepSpecs, tolerating a missing or non-array field.
func depList(field gjson.Result) []pkgmodel.DepSpec {
	if !field.IsArray() {
		return nil
	}
	var out []pkgmodel.DepSpec
	for _, v := range field.Array() {
		out = append(out, parseDepString(v.String()))
	}
	return out
}

func parseDepString(raw string) pkgmodel.DepSpec {
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

// marshalled is used only by tests to build fixture response bodies without
// hand-writing JSON literals for every field.
func marshalled(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
