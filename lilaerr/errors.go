// Package lilaerr defines the engine's stable error-kind taxonomy.
//
// Every error the engine returns across its public API carries a Kind, a
// path/identifier, and a human message, per the error handling design: the
// engine never exposes stack traces across its boundary, and callers are
// expected to branch on Kind (via errors.Is against the package-level
// sentinels) rather than string-matching messages.
package lilaerr

import (
	"errors"
	"fmt"
)

// Kind tags the category of an engine error.
type Kind int

const (
	KindUnknown Kind = iota
	KindPathNotFound
	KindNotALeaf
	KindDtypeConflict
	KindDtypeUnsupportedForSignal
	KindEmbeddingNotComputed
	KindSignalDependencyMissing
	KindInvalidFilter
	KindSortKeyUnknown
	KindUnknownSearchKind
	KindUdfContractViolation
	KindVectorIndexMissing
	KindCancelled
	KindManifestCorrupt
	KindShardMissing
	KindCommitConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindPathNotFound:
		return "PathNotFound"
	case KindNotALeaf:
		return "NotALeaf"
	case KindDtypeConflict:
		return "DtypeConflict"
	case KindDtypeUnsupportedForSignal:
		return "DtypeUnsupportedForSignal"
	case KindEmbeddingNotComputed:
		return "EmbeddingNotComputed"
	case KindSignalDependencyMissing:
		return "SignalDependencyMissing"
	case KindInvalidFilter:
		return "InvalidFilter"
	case KindSortKeyUnknown:
		return "SortKeyUnknown"
	case KindUnknownSearchKind:
		return "UnknownSearchKind"
	case KindUdfContractViolation:
		return "UdfContractViolation"
	case KindVectorIndexMissing:
		return "VectorIndexMissing"
	case KindCancelled:
		return "Cancelled"
	case KindManifestCorrupt:
		return "ManifestCorrupt"
	case KindShardMissing:
		return "ShardMissing"
	case KindCommitConflict:
		return "CommitConflict"
	case KindUnauthorized:
		return "Unauthorized"
	default:
		return "Unknown"
	}
}

// sentinel errors, one per Kind, so callers can errors.Is(err, lilaerr.ErrPathNotFound).
var (
	ErrPathNotFound              = errors.New("path not found")
	ErrNotALeaf                  = errors.New("path does not resolve to a leaf")
	ErrDtypeConflict             = errors.New("dtype conflict")
	ErrDtypeUnsupportedForSignal = errors.New("dtype unsupported for signal")
	ErrEmbeddingNotComputed      = errors.New("embedding column not computed")
	ErrSignalDependencyMissing   = errors.New("signal dependency missing")
	ErrInvalidFilter             = errors.New("invalid filter")
	ErrSortKeyUnknown            = errors.New("unknown sort key")
	ErrUnknownSearchKind         = errors.New("unknown search kind")
	ErrUdfContractViolation      = errors.New("udf contract violation")
	ErrVectorIndexMissing        = errors.New("vector index missing")
	ErrCancelled                 = errors.New("cancelled")
	ErrManifestCorrupt           = errors.New("manifest corrupt")
	ErrShardMissing              = errors.New("shard missing")
	ErrCommitConflict            = errors.New("commit conflict")
	ErrUnauthorized              = errors.New("unauthorized")
)

var sentinelByKind = map[Kind]error{
	KindPathNotFound:              ErrPathNotFound,
	KindNotALeaf:                  ErrNotALeaf,
	KindDtypeConflict:             ErrDtypeConflict,
	KindDtypeUnsupportedForSignal: ErrDtypeUnsupportedForSignal,
	KindEmbeddingNotComputed:      ErrEmbeddingNotComputed,
	KindSignalDependencyMissing:   ErrSignalDependencyMissing,
	KindInvalidFilter:             ErrInvalidFilter,
	KindSortKeyUnknown:            ErrSortKeyUnknown,
	KindUnknownSearchKind:         ErrUnknownSearchKind,
	KindUdfContractViolation:      ErrUdfContractViolation,
	KindVectorIndexMissing:        ErrVectorIndexMissing,
	KindCancelled:                 ErrCancelled,
	KindManifestCorrupt:           ErrManifestCorrupt,
	KindShardMissing:              ErrShardMissing,
	KindCommitConflict:            ErrCommitConflict,
	KindUnauthorized:              ErrUnauthorized,
}

// Error wraps a sentinel with the path/identifier and context the spec
// requires every engine error to carry.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an *Error for the given kind, path, and formatted message.
func New(kind Kind, path string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Wrapped: sentinelByKind[kind],
	}
}

// Wrap builds an *Error that also unwraps to the given underlying error in
// addition to the kind's sentinel.
func Wrap(kind Kind, path string, err error) *Error {
	return &Error{
		Kind:    kind,
		Path:    path,
		Message: err.Error(),
		Wrapped: joinSentinel(kind, err),
	}
}

func joinSentinel(kind Kind, err error) error {
	sentinel, ok := sentinelByKind[kind]
	if !ok {
		return err
	}
	return errors.Join(sentinel, err)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	sentinel, ok := sentinelByKind[kind]
	if !ok {
		return false
	}
	return errors.Is(err, sentinel)
}
