package filesystem

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/apex/log"
)

type ErrorCode string

const (
	ErrCodeIsDirectory    ErrorCode = "E_ISDIR"
	ErrCodeNotDirectory   ErrorCode = "E_NOTDIR"
	ErrCodeNotEmpty       ErrorCode = "E_NOTEMPTY"
	ErrCodeAlreadyExists  ErrorCode = "E_EXIST"
	ErrCodeNotText        ErrorCode = "E_NOTTEXT"
	ErrCodeInvalidSource  ErrorCode = "E_BADSRC"
	ErrCodeInvalidTarget  ErrorCode = "E_BADDST"
	ErrCodeUnknownArchive ErrorCode = "E_UNKNFMT"
	ErrCodePathResolution ErrorCode = "E_BADPATH"
	ErrCodeUnknownError   ErrorCode = "E_UNKNOWN"
	ErrNotExist           ErrorCode = "E_NOTEXIST"
)

type Error struct {
	code ErrorCode
	// Contains the underlying error leading to this error. This value
	// may or may not be present, it is entirely dependent on how this error
	// was triggered.
	err error
	// This contains the value of the final destination that triggered this
	// specific error event.
	resolved string
	// This value is generally only present on errors stemming from a path
	// resolution error. For everything else you should be setting and reading
	// the resolved path value which will be far more useful.
	path string
}

// newFilesystemError returns a new error instance with a stack trace associated.
func newFilesystemError(code ErrorCode, err error) error {
	if err != nil {
		return errors.WithStackDepth(&Error{code: code, err: err}, 1)
	}
	return errors.WithStackDepth(&Error{code: code}, 1)
}

// Code returns the ErrorCode for this specific error instance.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Returns a human-readable error string to identify the Error by.
func (e *Error) Error() string {
	switch e.code {
	case ErrCodeIsDirectory:
		return "filesystem: is a directory"
	case ErrCodeNotDirectory:
		return "filesystem: is not a directory"
	case ErrCodeNotEmpty:
		return "filesystem: directory is not empty or cannot be removed"
	case ErrCodeAlreadyExists:
		return "filesystem: already exists"
	case ErrCodeNotText:
		return "filesystem: file content is not decodable text"
	case ErrCodeInvalidSource:
		return "filesystem: source is not a regular file or directory"
	case ErrCodeInvalidTarget:
		return "filesystem: cannot copy a directory into itself"
	case ErrCodeUnknownArchive:
		return "filesystem: unknown archive format"
	case ErrCodePathResolution:
		r := e.resolved
		if r == "" {
			r = "<empty>"
		}
		return fmt.Sprintf("filesystem: path [%s] resolves to a location outside the sandbox root: %s", e.path, r)
	case ErrNotExist:
		return "filesystem: does not exist"
	case ErrCodeUnknownError:
		fallthrough
	default:
		return fmt.Sprintf("filesystem: an error occurred: %v", e.Unwrap())
	}
}

// Unwrap returns the underlying error that was triggered by this filesystem
// error, or nil if nothing was wrapped.
func (e *Error) Unwrap() error {
	return e.err
}

// Resolved returns the resolved path that triggered the error, or an empty
// string if no path was associated with it.
func (e *Error) Resolved() string {
	return e.resolved
}

// Generates an error logger instance with some basic information.
func (fs *Filesystem) error(err error) *log.Entry {
	return log.WithField("subsystem", "filesystem").WithField("root", fs.root).WithField("error", err)
}

// IsFilesystemError checks if the given error is one of the Filesystem errors.
func IsFilesystemError(err error) bool {
	var fserr *Error
	if err != nil && errors.As(err, &fserr) {
		return true
	}
	return false
}

// IsErrorCode checks if "err" is a filesystem Error type. If so, it will then
// check that the error code is the same as the provided ErrorCode passed in
// "code".
func IsErrorCode(err error, code ErrorCode) bool {
	var fserr *Error
	if err != nil && errors.As(err, &fserr) {
		return fserr.code == code
	}
	return false
}

// NewBadPathResolution returns a new BadPathResolution error. The provided
// path is the value that the caller handed to the resolver, the resolved value
// is the location it would have landed at outside the sandbox.
func NewBadPathResolution(path string, resolved string) error {
	return errors.WithStackDepth(&Error{code: ErrCodePathResolution, path: path, resolved: resolved}, 1)
}

// wrapError wraps the provided error as a filesystem error and attaches the
// provided resolved path to it. If the error is already a filesystem error no
// action is taken.
func wrapError(err error, resolved string) error {
	if err == nil || IsFilesystemError(err) {
		return err
	}
	return errors.WithStackDepth(&Error{code: ErrCodeUnknownError, err: err, resolved: resolved}, 1)
}
