// Package signer wraps the gpg-compatible signer (spec.md §6) and, ahead
// of a build, proactively resolves a recipe's `validpgpkeys` through a
// local key cache (spec.md §9 "keys handling") instead of leaving
// makepkg to shell out to `gpg --recv-keys` once per missing key during
// the build itself.
package signer

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Client invokes the gpg-compatible signer.
type Client struct {
	// Bin defaults to "gpg".
	Bin string
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "gpg"
	}
	return c.Bin
}

// HasSignature reports whether artifactPath already has a detached
// signature sibling (spec.md §4.2 "Pre-existing signatures are kept
// unless delete_sig").
func HasSignature(artifactPath string, statFn func(string) (bool, error)) (bool, error) {
	return statFn(artifactPath + ".sig")
}

// DetachSign produces a detached, binary signature for artifactPath via
// `--detach-sign --no-armor --batch [-u <key>] --output <path>.sig
// <path>` (spec.md §6). keyID is optional; empty uses gpg's default
// signing key.
func (c *Client) DetachSign(ctx context.Context, artifactPath, keyID string) error {
	args := []string{"--detach-sign", "--no-armor", "--batch"}
	if keyID != "" {
		args = append(args, "-u", keyID)
	}
	args = append(args, "--output", artifactPath+".sig", artifactPath)

	cmd := exec.CommandContext(ctx, c.bin(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: sign %s: %s: %s", pkgmodel.ErrSign, artifactPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ImportKey imports an ASCII-armored public key (typically resolved via
// KeyCache.Get) into gpg's keyring via `--batch --import`, so a
// subsequent build's own signature checks find it without a network
// round trip.
func (c *Client) ImportKey(ctx context.Context, armoredKey string) error {
	cmd := exec.CommandContext(ctx, c.bin(), "--batch", "--import")
	cmd.Stdin = strings.NewReader(armoredKey)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: import key: %s: %s", pkgmodel.ErrSign, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// HasKey reports whether fingerprint is already present in gpg's public
// keyring via `--list-keys`.
func (c *Client) HasKey(ctx context.Context, fingerprint string) bool {
	cmd := exec.CommandContext(ctx, c.bin(), "--batch", "--list-keys", fingerprint)
	return cmd.Run() == nil
}

// cacheFilePath returns the on-disk cache path for a fingerprint's
// armored key.
func cacheFilePath(cacheDir, fingerprint string) string {
	return filepath.Join(cacheDir, strings.ToUpper(fingerprint)+".asc")
}
