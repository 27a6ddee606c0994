// Package errmsg provides enhanced error message formatting with actionable
// suggestions for cairn's CLI surface.
package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// ErrorContext provides additional context for error formatting.
type ErrorContext struct {
	Target string // the package/base name being operated on, for suggestions
}

// Format returns a formatted error message with possible causes and
// suggestions. ctx is optional - pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()

	var unresolvable *pkgmodel.UnresolvableError
	if errors.As(err, &unresolvable) {
		return formatUnresolvable(unresolvable, ctx)
	}

	var conflict *pkgmodel.ConflictError
	if errors.As(err, &conflict) {
		return formatConflict(conflict, ctx)
	}

	var duplicate *pkgmodel.DuplicateTargetError
	if errors.As(err, &duplicate) {
		return formatDuplicateTarget(duplicate, ctx)
	}

	if errors.Is(err, pkgmodel.ErrSign) {
		return formatSignError(errMsg, ctx)
	}

	if errors.Is(err, pkgmodel.ErrFetch) && isChecksumError(errMsg) {
		return formatChecksumMismatch(errMsg, ctx)
	}

	if isRateLimitError(errMsg) {
		return formatRateLimitError(errMsg, ctx)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr, ctx)
	}
	if errors.Is(err, pkgmodel.ErrNetwork) || isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg, ctx)
	}

	if isNotFoundError(errMsg) {
		return formatNotFoundError(errMsg, ctx)
	}

	if errors.Is(err, pkgmodel.ErrPermission) || isPermissionError(errMsg) {
		return formatPermissionError(errMsg, ctx)
	}

	return errMsg
}

func formatUnresolvable(err *pkgmodel.UnresolvableError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	for _, dep := range err.Missing {
		sb.WriteString(fmt.Sprintf("  - %s is not in the SPM repos or the recipe index (required by %s)\n", dep.Dep, strings.Join(dep.Stack, " -> ")))
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check for a typo in the package name\n")
	sb.WriteString("  - Run 'cairn search <name>' to search the recipe index\n")
	sb.WriteString("  - If this is a split package, the base may need building separately\n")

	return sb.String()
}

func formatConflict(err *pkgmodel.ConflictError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	for _, entry := range append(append([]pkgmodel.ConflictEntry{}, err.Inner...), err.External...) {
		for _, reason := range entry.Conflicting {
			sb.WriteString(fmt.Sprintf("  - %s conflicts with %s (via %s)\n", entry.Pkg, reason.Conflictor, reason.Via))
		}
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Remove the conflicting package first\n")
	sb.WriteString("  - Pick one of the providers explicitly\n")

	return sb.String()
}

func formatDuplicateTarget(err *pkgmodel.DuplicateTargetError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	for _, r := range err.Resolutions {
		sb.WriteString(fmt.Sprintf("  - %s\n", r))
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Remove one of the conflicting recipe sources\n")
	sb.WriteString("  - Qualify the target with its base or repo explicitly\n")

	return sb.String()
}

func formatSignError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The recipe's validpgpkeys entry has not been imported into your keyring\n")
	sb.WriteString("  - The maintainer's key expired or was revoked\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Import the listed key and re-run\n")
	sb.WriteString("  - Pass --skippgpcheck to skip signature verification (not recommended)\n")

	return sb.String()
}

func formatChecksumMismatch(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The upstream source changed without a pkgrel bump\n")
	sb.WriteString("  - A stale source tarball was cached locally\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Re-fetch the recipe to pick up an updated .SRCINFO\n")
	if ctx != nil && ctx.Target != "" {
		sb.WriteString(fmt.Sprintf("  - Clear the cached clone for %s and retry\n", ctx.Target))
	}

	return sb.String()
}

func formatRateLimitError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Too many requests to the recipe index or VCS API\n")
	sb.WriteString("  - Unauthenticated requests have lower limits\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Set GITHUB_TOKEN to raise the develop-tracker's commit-check rate limit\n")
	sb.WriteString("  - Wait a few minutes before retrying\n")

	return sb.String()
}

func formatNetworkError(err net.Error, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatGenericNetworkError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - DNS resolution failure\n")
	sb.WriteString("  - Recipe index temporarily unavailable\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatNotFoundError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - No SPM repo or recipe index entry has this name\n")
	sb.WriteString("  - Typo in the package name\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the spelling of the package name\n")
	sb.WriteString("  - Run 'cairn search <name>' to search the recipe index\n")

	return sb.String()
}

func formatPermissionError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on $CAIRN_HOME\n")
	sb.WriteString("  - The privileged helper could not escalate\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check permissions on your cairn cache directory\n")
	sb.WriteString("  - Ensure your sudo-compatible helper is configured correctly\n")

	return sb.String()
}

func isRateLimitError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate-limit") ||
		strings.Contains(lower, "too many requests")
}

func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "i/o timeout")
}

func isNotFoundError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "404") ||
		strings.Contains(lower, "does not exist")
}

func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}

func isChecksumError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "checksum") || strings.Contains(lower, "sha256")
}
