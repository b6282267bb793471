package services

import (
	"strings"

	"github.com/go-faster/errors"
)

var (
	ErrUnauthorized           = errors.New("access denied")
	ErrInvalidToken           = errors.New("invalid csrf token")
	ErrArtifactDeletionFailed = errors.New("image artifact could not be deleted")
	ErrPersistence            = errors.New("persistence failure")
)

// PersistenceError reports a failed write. Orphans lists stored image
// references that could not be cleaned up afterwards.
type PersistenceError struct {
	Op      string
	Err     error
	Orphans []string
}

func (e *PersistenceError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if len(e.Orphans) > 0 {
		msg += " (orphaned artifacts: " + strings.Join(e.Orphans, ", ") + ")"
	}
	return msg
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
