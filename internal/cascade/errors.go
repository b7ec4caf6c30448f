package cascade

import (
	"errors"
	"fmt"
)

var (
	// ErrSubjectNotFound means the episodes a mutation targets are not in
	// the local cache.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrPartialIDSet means the resolved episode IDs could not be proven
	// complete. It is an invariant violation and fails the whole operation
	// before the remote is contacted.
	ErrPartialIDSet = errors.New("partial episode id set")

	// ErrInvalidArgument is wrapped for rejected inputs.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeSubjectNotFound: the target episode set could not be resolved.
	ErrCodeSubjectNotFound ErrorCode = "SUBJECT_NOT_FOUND"

	// ErrCodePartialIDSet: the resolved IDs disagree with the row count or
	// contain duplicates.
	ErrCodePartialIDSet ErrorCode = "PARTIAL_ID_SET"

	// ErrCodeRemoteRejected: the remote call failed. Nothing was written.
	ErrCodeRemoteRejected ErrorCode = "REMOTE_REJECTED"

	// ErrCodeLocalApply: the remote accepted the change but the local batch
	// failed. The next sync repairs the cache.
	ErrCodeLocalApply ErrorCode = "LOCAL_APPLY_FAILED"

	// ErrCodeInvalidArgument: the request was rejected before any I/O.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error is a coordinator failure with the subject and episode IDs involved.
type Error struct {
	Code       ErrorCode
	Message    string
	SubjectID  int64
	EpisodeIDs []int64
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.SubjectID != 0 {
		msg += fmt.Sprintf(" (subject=%d)", e.SubjectID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSubjectNotFound:
		return e.Code == ErrCodeSubjectNotFound
	case ErrPartialIDSet:
		return e.Code == ErrCodePartialIDSet
	case ErrInvalidArgument:
		return e.Code == ErrCodeInvalidArgument
	}
	return false
}

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsRemoteRejected reports whether err is a failed remote call. The local
// store was not touched.
func IsRemoteRejected(err error) bool { return hasCode(err, ErrCodeRemoteRejected) }

// IsLocalApply reports whether the remote succeeded but the local follow-up
// failed.
func IsLocalApply(err error) bool { return hasCode(err, ErrCodeLocalApply) }

func newSubjectNotFound(subjectID int64, format string, args ...any) *Error {
	return &Error{
		Code:      ErrCodeSubjectNotFound,
		Message:   fmt.Sprintf(format, args...),
		SubjectID: subjectID,
	}
}

func newInvalidArgument(subjectID int64, format string, args ...any) *Error {
	return &Error{
		Code:      ErrCodeInvalidArgument,
		Message:   fmt.Sprintf(format, args...),
		SubjectID: subjectID,
	}
}
