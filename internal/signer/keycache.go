package signer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/cairn-pm/cairn/internal/httputil"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

const (
	// maxKeySize bounds a fetched armored key, matching a keyserver
	// response's expected shape rather than an arbitrary download.
	maxKeySize = 100 * 1024

	keyFetchTimeout = 30 * time.Second
)

var fingerprintRegex = regexp.MustCompile(`^[0-9A-Fa-f]{40}$`)

// KeyCache resolves a recipe's validpgpkeys fingerprints to armored
// public keys, caching them on disk so repeated builds across the same
// recipe (or across a batch sharing a signer) don't re-hit the
// keyserver.
type KeyCache struct {
	CacheDir string
	// KeyserverURL is a keyserver's HKP-over-HTTP lookup endpoint with a
	// single "%s" placeholder for the uppercase hex fingerprint. Defaults
	// to keyserver.ubuntu.com's.
	KeyserverURL string
}

func (c *KeyCache) keyserverURL() string {
	if c.KeyserverURL != "" {
		return c.KeyserverURL
	}
	return "https://keyserver.ubuntu.com/pks/lookup?op=get&options=mr&search=0x%s"
}

// Get retrieves fingerprint's armored public key, from the on-disk cache
// if present and otherwise from the configured keyserver, validating the
// fetched key's own fingerprint matches before returning it.
func (c *KeyCache) Get(ctx context.Context, fingerprint string) (*crypto.Key, error) {
	fingerprint = strings.ToUpper(fingerprint)
	if !fingerprintRegex.MatchString(fingerprint) {
		return nil, fmt.Errorf("%w: invalid PGP fingerprint %q", pkgmodel.ErrSign, fingerprint)
	}

	if key, err := c.loadFromCache(fingerprint); err == nil {
		return key, nil
	}

	key, armored, err := c.fetch(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := c.saveToCache(fingerprint, armored); err != nil {
		return key, nil
	}
	return key, nil
}

func (c *KeyCache) loadFromCache(fingerprint string) (*crypto.Key, error) {
	path := cacheFilePath(c.CacheDir, fingerprint)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	key, err := crypto.NewKeyFromArmored(string(data))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: cached key %s is invalid: %v", pkgmodel.ErrSign, fingerprint, err)
	}
	if strings.ToUpper(key.GetFingerprint()) != fingerprint {
		os.Remove(path)
		return nil, fmt.Errorf("%w: cached key fingerprint mismatch for %s", pkgmodel.ErrSign, fingerprint)
	}
	return key, nil
}

func (c *KeyCache) fetch(ctx context.Context, fingerprint string) (*crypto.Key, string, error) {
	ctx, cancel := context.WithTimeout(ctx, keyFetchTimeout)
	defer cancel()

	client := httputil.NewSecureClient(httputil.ClientOptions{Timeout: keyFetchTimeout})

	lookupURL := fmt.Sprintf(c.keyserverURL(), url.QueryEscape(fingerprint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build key request: %v", pkgmodel.ErrSign, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch key %s: %v", pkgmodel.ErrSign, fingerprint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: fetch key %s: HTTP %d", pkgmodel.ErrSign, fingerprint, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read key %s: %v", pkgmodel.ErrSign, fingerprint, err)
	}
	if len(data) > maxKeySize {
		return nil, "", fmt.Errorf("%w: key %s exceeds maximum size of %d bytes", pkgmodel.ErrSign, fingerprint, maxKeySize)
	}

	armored := string(data)
	key, err := crypto.NewKeyFromArmored(armored)
	if err != nil {
		return nil, "", fmt.Errorf("%w: parse fetched key %s: %v", pkgmodel.ErrSign, fingerprint, err)
	}
	if got := strings.ToUpper(key.GetFingerprint()); got != fingerprint {
		return nil, "", fmt.Errorf("%w: fetched key fingerprint mismatch: expected %s, got %s", pkgmodel.ErrSign, fingerprint, got)
	}

	return key, armored, nil
}

func (c *KeyCache) saveToCache(fingerprint, armored string) error {
	if err := os.MkdirAll(c.CacheDir, 0o700); err != nil {
		return fmt.Errorf("%w: create key cache directory: %v", pkgmodel.ErrSign, err)
	}
	return os.WriteFile(cacheFilePath(c.CacheDir, fingerprint), []byte(armored), 0o600)
}

// EnsureKeys resolves every fingerprint not already in gpg's local
// keyring through the cache (fetching and importing as needed), so the
// subsequent build finds every validpgpkeys entry already trusted
// (spec.md §9 "keys handling").
func (c *KeyCache) EnsureKeys(ctx context.Context, gpg *Client, fingerprints []string) error {
	for _, fpr := range fingerprints {
		if gpg.HasKey(ctx, fpr) {
			continue
		}
		key, err := c.Get(ctx, fpr)
		if err != nil {
			return err
		}
		armored, err := key.Armor()
		if err != nil {
			return fmt.Errorf("%w: re-armor key %s: %v", pkgmodel.ErrSign, fpr, err)
		}
		if err := gpg.ImportKey(ctx, armored); err != nil {
			return err
		}
	}
	return nil
}
