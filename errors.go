package diorama

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// ErrUnknownBehaviorKind is returned when a behavior type is not one of
	// the recognized variants.
	ErrUnknownBehaviorKind = errors.New("unknown behavior kind")

	// ErrInvalidBehaviorParameter is returned when a behavior field is out of
	// range or otherwise malformed.
	ErrInvalidBehaviorParameter = errors.New("invalid behavior parameter")

	// ErrAssetLoadFailed is returned when a sprite image could not be loaded,
	// including after the cache-busting retry.
	ErrAssetLoadFailed = errors.New("asset load failed")

	// ErrAssetNotFound is returned by ports when a named asset does not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrPersistenceConflict is returned when the store holds a newer
	// snapshot than the one being saved.
	ErrPersistenceConflict = errors.New("scene was modified elsewhere")

	// ErrInvariantViolation marks a broken model invariant such as a duplicate
	// sprite name or a non-finite transform.
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrLayerNotFound is returned when no layer has the requested name.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrKeyframeNotFound is returned when a behavior index does not refer to
	// a location keyframe.
	ErrKeyframeNotFound = errors.New("keyframe not found")
)

// BehaviorError describes a rejected behavior parameter.
type BehaviorError struct {
	Kind   BehaviorKind
	Field  string
	Reason string
}

func (e *BehaviorError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Kind, e.Field, e.Reason)
}

func (e *BehaviorError) Unwrap() error {
	return ErrInvalidBehaviorParameter
}

// InvariantError carries the operation and layer that tripped an invariant.
type InvariantError struct {
	Op     string
	Layer  string
	Reason string
}

func (e *InvariantError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Op, e.Layer, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// ConflictError is returned by stores when the persisted scene is newer than
// the one being saved. Snapshot holds the authoritative copy.
type ConflictError struct {
	Snapshot *Scene
}

func (e *ConflictError) Error() string {
	if e.Snapshot == nil {
		return ErrPersistenceConflict.Error()
	}
	return fmt.Sprintf("%v (stored revision %d)", ErrPersistenceConflict, e.Snapshot.Revision)
}

func (e *ConflictError) Unwrap() error {
	return ErrPersistenceConflict
}

var logger = log.New(os.Stderr, "[diorama] ", log.LstdFlags)

// SetLogOutput redirects the package logger. Tests pass io.Discard.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

func logf(format string, args ...any) {
	logger.Printf(format, args...)
}

// NoticeLevel grades a user-facing notice.
type NoticeLevel uint8

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a short message for the user, shown by the host as a toast.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// noticeFor turns a rejected mutation into a notice.
func noticeFor(err error) Notice {
	if errors.Is(err, ErrPersistenceConflict) {
		return Notice{Level: NoticeWarning, Message: "scene was modified elsewhere; reload? (R reloads, K keeps local)", Err: err}
	}
	return Notice{Level: NoticeError, Message: err.Error(), Err: err}
}
