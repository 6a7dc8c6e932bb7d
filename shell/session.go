package shell

import (
	"fmt"
	"path"
	"strings"

	"emperror.dev/errors"
	"github.com/google/uuid"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/shell/filesystem"
	"github.com/burrowsh/burrow/system"
)

// Session owns the state for a single interactive shell: the sandboxed
// filesystem it operates on, the virtual working directory rendered in the
// prompt, and the sink all command output goes through.
type Session struct {
	id      uuid.UUID
	fs      *filesystem.Filesystem
	console Sink
	history *History

	// The working directory for the session tracked relative to the sandbox
	// root. An empty string means the session is sitting at the root itself.
	cwd string
}

// NewSession returns a session rooted at the top of the given filesystem.
func NewSession(fs *filesystem.Filesystem, snk Sink) *Session {
	return &Session{id: uuid.New(), fs: fs, console: snk}
}

// ID returns the unique identifier for the session used to group its history.
func (s *Session) ID() string {
	return s.id.String()
}

// Filesystem returns the sandboxed filesystem backing the session.
func (s *Session) Filesystem() *filesystem.Filesystem {
	return s.fs
}

// AttachHistory connects a history recorder to the session. Sessions without
// one simply skip recording, which is what tests and disabled configurations
// rely on.
func (s *Session) AttachHistory(h *History) {
	s.history = h
}

// Path returns the absolute path of the directory the session is currently
// sitting in.
func (s *Session) Path() string {
	if s.cwd == "" {
		return s.fs.Path()
	}
	return s.fs.Path() + "/" + s.cwd
}

// DisplayPath returns the working directory the way the prompt renders it,
// which is a tilde while the session is at the sandbox root.
func (s *Session) DisplayPath() string {
	if s.cwd == "" {
		return "~"
	}
	return s.cwd
}

// Prompt returns the full prompt string for the next input cycle. A blank
// terminal name in the configuration file falls back to the stock one rather
// than rendering a prompt with nothing in front of the colon.
func (s *Session) Prompt() string {
	return fmt.Sprintf("%s:%s$ ", system.FirstNotEmpty(config.Get().TerminalName, "burrow"), s.DisplayPath())
}

// resolve joins a user supplied path fragment onto the working directory of
// the session. A fragment with a leading slash is anchored at the sandbox
// root instead, mirroring how the filesystem layer reads its paths.
func (s *Session) resolve(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(s.cwd, p)
}

// ChangeDirectory moves the session to another directory inside the sandbox.
// An empty argument jumps straight back to the root, ".." moves up a single
// level and fails without side effects when the session is already at the
// top. Anything else has to resolve to an existing directory.
func (s *Session) ChangeDirectory(arg string) error {
	if arg == "" {
		s.cwd = ""
		return nil
	}
	if arg == ".." {
		if s.cwd == "" {
			return errors.WithStack(ErrAtRootBoundary)
		}
		// The parent of anything below the root is still inside the root by
		// construction, so there is nothing to resolve here.
		if p := path.Dir(s.cwd); p != "." {
			s.cwd = p
		} else {
			s.cwd = ""
		}
		return nil
	}
	resolved, err := s.fs.Directory(s.resolve(arg))
	if err != nil {
		return err
	}
	s.cwd = strings.Trim(strings.TrimPrefix(resolved, s.fs.Path()), "/")
	return nil
}

// guardCurrentDirectory rejects destructive operations aimed at the directory
// the session is currently in, or one of its parents. Allowing those through
// would leave the prompt pointing at a directory that no longer exists.
func (s *Session) guardCurrentDirectory(p string) error {
	if s.cwd == "" {
		return nil
	}
	target := strings.Trim(path.Clean("/"+s.resolve(p)), "/")
	if target == "" {
		return nil
	}
	if s.cwd == target || strings.HasPrefix(s.cwd+"/", target+"/") {
		return errors.WithStack(ErrCurrentDirectoryTarget)
	}
	return nil
}

func (s *Session) printf(style Style, format string, args ...interface{}) {
	s.console.Write(style, fmt.Sprintf(format, args...))
}
