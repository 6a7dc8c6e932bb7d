package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emperror.dev/errors"
	. "github.com/franela/goblin"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/shell/filesystem"
)

// recorder is a Sink that captures everything a session writes so tests can
// assert on output without a terminal anywhere in sight.
type recorder struct {
	lines   []recordedLine
	cleared int
}

type recordedLine struct {
	style Style
	text  string
}

func (r *recorder) Write(style Style, text string) {
	r.lines = append(r.lines, recordedLine{style: style, text: text})
}

func (r *recorder) Clear() {
	r.cleared++
}

func (r *recorder) output() string {
	var b strings.Builder
	for _, l := range r.lines {
		b.WriteString(l.text)
		b.WriteString("\n")
	}
	return b.String()
}

func (r *recorder) contains(s string) bool {
	return strings.Contains(r.output(), s)
}

func (r *recorder) reset() {
	r.lines = nil
	r.cleared = 0
}

func newTestSession() (*Session, *recorder, string) {
	config.Set(&config.Configuration{
		TerminalName: "burrow",
		System: config.SystemConfiguration{
			UsageCheckInterval: 150,
		},
	})

	tmp, err := os.MkdirTemp(os.TempDir(), "burrow")
	if err != nil {
		panic(err)
	}
	root := filepath.Join(tmp, "sandbox")
	if err := os.Mkdir(root, 0o755); err != nil {
		panic(err)
	}

	rec := &recorder{}
	return NewSession(filesystem.New(root), rec), rec, root
}

func resetRoot(root string) {
	if err := os.RemoveAll(root); err != nil && !os.IsNotExist(err) {
		panic(err)
	}
	if err := os.Mkdir(root, 0o755); err != nil {
		panic(err)
	}
}

func TestSession_ChangeDirectory(t *testing.T) {
	g := Goblin(t)
	s, rec, root := newTestSession()

	g.Describe("Session#ChangeDirectory", func() {
		g.AfterEach(func() {
			s.cwd = ""
			rec.reset()
			resetRoot(root)
		})

		g.It("starts out at the sandbox root", func() {
			g.Assert(s.DisplayPath()).Equal("~")
			g.Assert(s.Path()).Equal(root)
			g.Assert(s.Prompt()).Equal("burrow:~$ ")
		})

		g.It("falls back to the stock terminal name when configured blank", func() {
			config.Update(func(c *config.Configuration) {
				c.TerminalName = ""
			})

			g.Assert(s.Prompt()).Equal("burrow:~$ ")

			config.Update(func(c *config.Configuration) {
				c.TerminalName = "burrow"
			})
		})

		g.It("changes into an existing directory", func() {
			g.Assert(os.MkdirAll(filepath.Join(root, "nested/deeper"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("nested")).IsNil()
			g.Assert(s.DisplayPath()).Equal("nested")
			g.Assert(s.ChangeDirectory("deeper")).IsNil()
			g.Assert(s.DisplayPath()).Equal("nested/deeper")
			g.Assert(s.Prompt()).Equal("burrow:nested/deeper$ ")
			g.Assert(s.Path()).Equal(filepath.Join(root, "nested/deeper"))
		})

		g.It("moves up a single level with ..", func() {
			g.Assert(os.MkdirAll(filepath.Join(root, "nested/deeper"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("nested/deeper")).IsNil()
			g.Assert(s.ChangeDirectory("..")).IsNil()
			g.Assert(s.DisplayPath()).Equal("nested")
			g.Assert(s.ChangeDirectory("..")).IsNil()
			g.Assert(s.DisplayPath()).Equal("~")
		})

		g.It("fails with .. at the root and stays where it is", func() {
			err := s.ChangeDirectory("..")
			g.Assert(err).IsNotNil()
			g.Assert(errors.Is(err, ErrAtRootBoundary)).IsTrue()
			g.Assert(s.DisplayPath()).Equal("~")
		})

		g.It("returns to the root when called with no argument", func() {
			g.Assert(os.Mkdir(filepath.Join(root, "nested"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("nested")).IsNil()
			g.Assert(s.ChangeDirectory("")).IsNil()
			g.Assert(s.DisplayPath()).Equal("~")
		})

		g.It("reports a missing directory with the not exist code", func() {
			err := s.ChangeDirectory("missing")
			g.Assert(err).IsNotNil()
			g.Assert(filesystem.IsErrorCode(err, filesystem.ErrNotExist)).IsTrue()
			g.Assert(s.DisplayPath()).Equal("~")
		})

		g.It("reports a file target the same way as a missing one", func() {
			g.Assert(os.WriteFile(filepath.Join(root, "file.txt"), []byte("hi"), 0o644)).IsNil()

			err := s.ChangeDirectory("file.txt")
			g.Assert(err).IsNotNil()
			g.Assert(filesystem.IsErrorCode(err, filesystem.ErrNotExist)).IsTrue()
		})

		g.It("anchors a leading slash at the sandbox root", func() {
			g.Assert(os.MkdirAll(filepath.Join(root, "a/b"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("a")).IsNil()
			g.Assert(s.ChangeDirectory("/a/b")).IsNil()
			g.Assert(s.DisplayPath()).Equal("a/b")
			g.Assert(s.ChangeDirectory("/")).IsNil()
			g.Assert(s.DisplayPath()).Equal("~")
		})

		g.It("clamps extra .. segments at the root instead of escaping", func() {
			g.Assert(s.ChangeDirectory("../../..")).IsNil()
			g.Assert(s.DisplayPath()).Equal("~")
			g.Assert(s.Path()).Equal(root)
		})

		g.It("refuses a symlink that points outside the sandbox", func() {
			g.Assert(os.Symlink(filepath.Dir(root), filepath.Join(root, "escape"))).IsNil()

			err := s.ChangeDirectory("escape")
			g.Assert(err).IsNotNil()
			g.Assert(filesystem.IsErrorCode(err, filesystem.ErrCodePathResolution)).IsTrue()
			g.Assert(s.DisplayPath()).Equal("~")
		})
	})

	g.Describe("Session#guardCurrentDirectory", func() {
		g.AfterEach(func() {
			s.cwd = ""
			rec.reset()
			resetRoot(root)
		})

		g.It("allows anything while sitting at the root", func() {
			g.Assert(s.guardCurrentDirectory("whatever")).IsNil()
		})

		g.It("rejects the directory the session is in", func() {
			g.Assert(os.Mkdir(filepath.Join(root, "a"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("a")).IsNil()
			err := s.guardCurrentDirectory("/a")
			g.Assert(err).IsNotNil()
			g.Assert(errors.Is(err, ErrCurrentDirectoryTarget)).IsTrue()
		})

		g.It("rejects a parent of the current directory", func() {
			g.Assert(os.MkdirAll(filepath.Join(root, "a/b"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("a/b")).IsNil()
			err := s.guardCurrentDirectory("/a")
			g.Assert(err).IsNotNil()
			g.Assert(errors.Is(err, ErrCurrentDirectoryTarget)).IsTrue()
		})

		g.It("allows children and siblings of the current directory", func() {
			g.Assert(os.MkdirAll(filepath.Join(root, "ab/child"), 0o755)).IsNil()
			g.Assert(os.Mkdir(filepath.Join(root, "a"), 0o755)).IsNil()

			g.Assert(s.ChangeDirectory("ab")).IsNil()
			g.Assert(s.guardCurrentDirectory("child")).IsNil()
			g.Assert(s.guardCurrentDirectory("/a")).IsNil()
		})
	})
}
