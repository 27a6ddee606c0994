package devel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// TipResolver resolves the current tip commit of a remote; satisfied by
// *vcsclient.Client in production and a stub in tests.
type TipResolver interface {
	TipCommit(ctx context.Context, url, branch string) (string, error)
}

// ProbeOptions configures a tracker probe run.
type ProbeOptions struct {
	// Concurrency bounds the number of in-flight remote lookups.
	Concurrency int64
	// PerProbeTimeout is each individual remote lookup's deadline.
	PerProbeTimeout time.Duration
	// IgnoreRemote reports whether a remote URL should be skipped entirely
	// (operator-configured ignore patterns, spec.md §4.3 "Filter policies").
	IgnoreRemote func(url string) bool
}

// Probe resolves the current tip commit of every remote endpoint in t,
// applying select_ok semantics per base: as soon as any of a base's
// remotes reports a commit differing from the tracked one, that base is
// marked updated and the remaining in-flight probes for that base are
// cancelled. Probes belonging to other bases continue unaffected.
//
// Returns the set of updated base names and, for every remote that
// answered before its base was resolved, the tip commit observed.
func Probe(ctx context.Context, t *pkgmodel.Tracker, resolver TipResolver, opts ProbeOptions) ([]string, map[string]map[string]string, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.PerProbeTimeout <= 0 {
		opts.PerProbeTimeout = 15 * time.Second
	}

	sem := semaphore.NewWeighted(opts.Concurrency)
	results := make(map[string]map[string]string, len(t.Bases))
	var mu sync.Mutex
	var updated []string
	var wg sync.WaitGroup

	for name, endpoints := range t.Bases {
		name, endpoints := name, endpoints
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeBase(ctx, sem, name, endpoints, resolver, opts, &mu, results, &updated)
		}()
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return updated, results, err
	}
	return updated, results, nil
}

// probeBase runs every remote probe for a single base, cancelling the
// base's own sub-context as soon as one remote reports a drifted commit.
func probeBase(
	ctx context.Context,
	sem *semaphore.Weighted,
	name string,
	endpoints []pkgmodel.RemoteEndpoint,
	resolver TipResolver,
	opts ProbeOptions,
	mu *sync.Mutex,
	results map[string]map[string]string,
	updated *[]string,
) {
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()

	var wg sync.WaitGroup
	var resolved bool

	for _, endpoint := range endpoints {
		if opts.IgnoreRemote != nil && opts.IgnoreRemote(endpoint.URL) {
			continue
		}
		endpoint := endpoint

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			probeCtx, cancel := context.WithTimeout(baseCtx, opts.PerProbeTimeout)
			defer cancel()

			tip, err := resolver.TipCommit(probeCtx, endpoint.URL, endpoint.Branch)
			if err != nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if results[name] == nil {
				results[name] = map[string]string{}
			}
			results[name][endpoint.Key()] = tip

			if tip != endpoint.Commit && !resolved {
				resolved = true
				*updated = append(*updated, name)
				cancelBase()
			}
		}()
	}

	wg.Wait()
}
