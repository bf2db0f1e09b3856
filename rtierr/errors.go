// Package rtierr implements the error taxonomy of the analysis engine:
// a closed set of sentinel kinds (the §7 table), each one wrapped with
// the (op_unique_id, task_name, context_unique_id) envelope the spec
// requires on every surfaced error.
package rtierr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one row of the error table.
type Kind int

const (
	_ Kind = iota
	PartialAcquire
	PartialRestriction
	InterferingRestriction
	InterferingAcquire
	AliasedInterferingChildren
	VersioningRemoteTimeout
	CorruptedState
)

func (k Kind) String() string {
	switch k {
	case PartialAcquire:
		return "PartialAcquire"
	case PartialRestriction:
		return "PartialRestriction"
	case InterferingRestriction:
		return "InterferingRestriction"
	case InterferingAcquire:
		return "InterferingAcquire"
	case AliasedInterferingChildren:
		return "AliasedInterferingChildren"
	case VersioningRemoteTimeout:
		return "VersioningRemoteTimeout"
	case CorruptedState:
		return "CorruptedState"
	default:
		return "Unknown"
	}
}

// Sentinel causes, one per Kind, matching the teacher's flat
// sentinel-error block style.
var (
	ErrPartialAcquire             = errors.New("acquire mask crosses a restriction-dominating node")
	ErrPartialRestriction          = errors.New("attach node does not dominate the enclosing acquisition")
	ErrInterferingRestriction      = errors.New("attach overlaps a restriction in a sibling sub-tree")
	ErrInterferingAcquire          = errors.New("acquire overlaps another acquire on the same fields")
	ErrAliasedInterferingChildren  = errors.New("requirement path hits two non-disjoint children for overlapping fields")
	ErrVersioningRemoteTimeout     = errors.New("remote VersionManager response never arrived")
	ErrCorruptedState              = errors.New("internal invariant violation")
)

func causeFor(k Kind) error {
	switch k {
	case PartialAcquire:
		return ErrPartialAcquire
	case PartialRestriction:
		return ErrPartialRestriction
	case InterferingRestriction:
		return ErrInterferingRestriction
	case InterferingAcquire:
		return ErrInterferingAcquire
	case AliasedInterferingChildren:
		return ErrAliasedInterferingChildren
	case VersioningRemoteTimeout:
		return ErrVersioningRemoteTimeout
	case CorruptedState:
		return ErrCorruptedState
	default:
		return errors.New("unrecognized error kind")
	}
}

// Envelope is the (op_unique_id, task_name, context_unique_id) triple
// the spec requires on every surfaced error.
type Envelope struct {
	OpUniqueID      uint64
	TaskName        string
	ContextUniqueID uint64
}

// RegionError is the error type returned across the analyzer's
// inbound API. It carries a Kind, a wrapped cause, and the envelope.
type RegionError struct {
	Kind     Kind
	Envelope Envelope
	cause    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("%s: op=%d task=%q ctx=%d: %s",
		e.Kind, e.Envelope.OpUniqueID, e.Envelope.TaskName, e.Envelope.ContextUniqueID, e.cause)
}

func (e *RegionError) Unwrap() error {
	return e.cause
}

// New builds a RegionError of the given Kind, wrapping the sentinel
// cause for that kind with the operation envelope.
func New(k Kind, env Envelope) *RegionError {
	return &RegionError{
		Kind:     k,
		Envelope: env,
		cause:    errors.Wrapf(causeFor(k), "op=%d task=%q ctx=%d", env.OpUniqueID, env.TaskName, env.ContextUniqueID),
	}
}

// Wrap attaches the envelope to an arbitrary underlying cause,
// preserving it in the error chain via errors.Wrap.
func Wrap(k Kind, env Envelope, cause error) *RegionError {
	return &RegionError{
		Kind:     k,
		Envelope: env,
		cause:    errors.Wrapf(cause, "op=%d task=%q ctx=%d", env.OpUniqueID, env.TaskName, env.ContextUniqueID),
	}
}

// Is reports whether err is a RegionError of the given Kind.
func Is(err error, k Kind) bool {
	var re *RegionError
	if errors.As(err, &re) {
		return re.Kind == k
	}
	return false
}
