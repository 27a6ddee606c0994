package pkgmodel

import "errors"

// The error taxonomy from spec.md §7. Each is a sentinel usable with
// errors.Is; call sites wrap it with fmt.Errorf("...: %w", ErrX) to attach
// context without losing the classification.
var (
	ErrConfig          = errors.New("config error")
	ErrParse           = errors.New("parse error")
	ErrNetwork         = errors.New("network error")
	ErrFetch           = errors.New("fetch error")
	ErrTrackerCorrupt  = errors.New("develop tracker corrupt")
	ErrUnresolvable    = errors.New("unresolvable dependencies")
	ErrDuplicateTarget = errors.New("duplicate targets")
	ErrConflict        = errors.New("package conflict")
	ErrBuild           = errors.New("build error")
	ErrSign            = errors.New("sign error")
	ErrPublish         = errors.New("publish error")
	ErrInstall         = errors.New("install error")
	ErrCancelled       = errors.New("cancelled")
	ErrPermission      = errors.New("permission error")
)

// MissingDep is an unresolved requirement with its provenance stack, e.g.
// "A -> B -> missing-C".
type MissingDep struct {
	Dep   string
	Stack []string
}

// UnresolvableError carries every MissingDep found during a resolve.
type UnresolvableError struct {
	Missing []MissingDep
}

func (e *UnresolvableError) Error() string {
	return "unresolvable dependencies"
}

func (e *UnresolvableError) Unwrap() error { return ErrUnresolvable }

// ConflictReason names why two packages were deemed to conflict.
type ConflictReason struct {
	Pkg        string
	Conflictor string
	Via        string // edge kind; the resolver's checks always set "conflicts", also for a match through provides
}

// ConflictEntry groups one package with everything it conflicts against.
type ConflictEntry struct {
	Pkg         string
	Conflicting []ConflictReason
}

// ConflictError wraps both inner (within the plan) and external (against
// already-installed packages not being removed) conflicts. Symmetric: if A
// conflicts with B, B conflicts with A in the same slice.
type ConflictError struct {
	Inner    []ConflictEntry
	External []ConflictEntry
}

func (e *ConflictError) Error() string {
	return "conflicting packages require confirmation"
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// DuplicateTargetError records two distinct resolutions that produced the
// same install name.
type DuplicateTargetError struct {
	Name        string
	Resolutions []string // human description of each resolution path
}

func (e *DuplicateTargetError) Error() string {
	return "duplicate target: " + e.Name
}

func (e *DuplicateTargetError) Unwrap() error { return ErrDuplicateTarget }
