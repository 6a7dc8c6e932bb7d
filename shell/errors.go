package shell

import (
	"os"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/burrowsh/burrow/shell/filesystem"
)

var (
	// ErrAtRootBoundary is returned when a session tries to move above the
	// sandbox root with "cd ..". The working directory is left untouched.
	ErrAtRootBoundary = errors.Sentinel("shell: already at the sandbox root")

	// ErrCurrentDirectoryTarget is returned when a destructive command names
	// the directory the session is currently in, or one of its parents, which
	// would leave the prompt pointing at a directory that no longer exists.
	ErrCurrentDirectoryTarget = errors.Sentinel("shell: operation targets the current directory")

	// errUsage is returned by command handlers when the arguments handed to
	// them do not line up with what the command expects. The dispatcher turns
	// it into a usage line for whichever command was running.
	errUsage = errors.Sentinel("shell: malformed arguments")

	// errExitRequested is returned by the exit command to tell the read loop
	// that the session is over. It is not an error from the user's point of
	// view and is recorded as a success in the history.
	errExitRequested = errors.Sentinel("shell: exit requested")
)

// CommandError wraps an error raised while executing a command so that it can
// be rendered as a single friendly line on the console rather than a raw
// wrapped error chain. Anything that does not map to a known condition is
// logged with its stack trace before a generic message is shown.
type CommandError struct {
	err error
	msg string
}

func newError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		// Don't stack the wrappers if a handler already produced one to attach
		// a custom message to.
		return ce
	}
	return &CommandError{err: errors.WithStackDepthIf(err, 1)}
}

// SetMessage overrides the message rendered to the console for this error.
func (ce *CommandError) SetMessage(msg string) *CommandError {
	ce.msg = msg
	return ce
}

func (ce *CommandError) Error() string {
	return ce.err.Error()
}

// Unwrap exposes the wrapped error so callers can match against the
// underlying condition with errors.Is and errors.As.
func (ce *CommandError) Unwrap() error {
	return ce.err
}

// Render writes a single line describing the error to the sink. Filesystem
// errors and the shell's own sentinels have fixed messages, everything else
// is logged and reported generically so internal details never leak into the
// session output.
func (ce *CommandError) Render(snk Sink) {
	if ce.msg != "" {
		snk.Write(StyleError, ce.msg)
		return
	}
	switch {
	case errors.Is(ce.err, ErrAtRootBoundary):
		snk.Write(StyleWarning, "already at the sandbox root, cannot move up any further")
	case errors.Is(ce.err, ErrCurrentDirectoryTarget):
		snk.Write(StyleError, "refusing to touch the current directory, cd out of it first")
	default:
		if msg := asFilesystemError(ce.err); msg != "" {
			snk.Write(StyleError, msg)
			return
		}
		if errors.Is(ce.err, os.ErrNotExist) {
			snk.Write(StyleError, "no such file or directory")
			return
		}
		if errors.Is(ce.err, os.ErrExist) {
			snk.Write(StyleError, "the destination already exists")
			return
		}
		if errors.Is(ce.err, os.ErrPermission) {
			snk.Write(StyleError, "permission denied")
			return
		}
		log.WithField("error", ce.err).Error("shell: unhandled error while executing command")
		snk.Write(StyleError, "an unexpected error was encountered while executing this command")
	}
}

// asFilesystemError returns the display message for a filesystem error, or an
// empty string when the error did not come out of the filesystem layer.
func asFilesystemError(err error) string {
	if !filesystem.IsFilesystemError(err) {
		return ""
	}
	switch {
	case filesystem.IsErrorCode(err, filesystem.ErrCodePathResolution):
		return "access denied: the path resolves to a location outside the sandbox root"
	case filesystem.IsErrorCode(err, filesystem.ErrNotExist):
		return "no such file or directory"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeIsDirectory):
		return "the target is a directory"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeNotDirectory):
		return "the target is not a directory"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeNotEmpty):
		return "the directory is not empty or could not be removed"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeAlreadyExists):
		return "a file or directory with that name already exists"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeNotText):
		return "cannot display the contents, the file is not decodable text"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeInvalidSource):
		return "the source is not a regular file or directory"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeInvalidTarget):
		return "cannot copy a directory into itself"
	case filesystem.IsErrorCode(err, filesystem.ErrCodeUnknownArchive):
		return "unrecognized archive format"
	}
	return "an unexpected filesystem error was encountered"
}

// errorCode reduces an execution error to the short code recorded on the
// command's history row. A nil error and a requested exit both count as a
// success and record no code at all.
func errorCode(err error) string {
	if err == nil || errors.Is(err, errExitRequested) {
		return ""
	}
	var fserr *filesystem.Error
	if errors.As(err, &fserr) {
		return string(fserr.Code())
	}
	switch {
	case errors.Is(err, ErrAtRootBoundary):
		return "E_ATROOT"
	case errors.Is(err, ErrCurrentDirectoryTarget):
		return "E_CURDIR"
	case errors.Is(err, errUsage):
		return "E_USAGE"
	case errors.Is(err, os.ErrNotExist):
		return string(filesystem.ErrNotExist)
	case errors.Is(err, os.ErrExist):
		return string(filesystem.ErrCodeAlreadyExists)
	case errors.Is(err, os.ErrPermission):
		return "E_PERM"
	}
	return string(filesystem.ErrCodeUnknownError)
}
