package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"emperror.dev/errors"
	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/system"
)

// promptExit is panicked out of the go-prompt executor to break its run loop,
// the library has no way of stopping it from inside a callback.
type promptExit struct{}

// promptRecallDepth caps how many persisted history lines seed the prompt's
// line recall when an interactive session starts.
const promptRecallDepth = 100

// REPL drives a session from an input stream. When stdin is a terminal the
// loop runs through go-prompt with line editing and tab completion, otherwise
// it degrades to a plain buffered reader so piped scripts behave sensibly.
type REPL struct {
	session *Session

	in          io.Reader
	out         io.Writer
	interactive bool
}

// NewREPL returns a read loop for the session wired up to stdin and stdout.
func NewREPL(s *Session) *REPL {
	return &REPL{
		session:     s,
		in:          os.Stdin,
		out:         os.Stdout,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Run prints the banner and then processes input until the session asks to
// stop or the input stream runs dry.
func (r *REPL) Run() error {
	r.banner()
	var err error
	if r.interactive {
		err = r.runPrompt()
	} else {
		err = r.runPiped()
	}
	if err != nil {
		return err
	}
	r.session.printf(StyleSuccess, "exiting %s. goodbye!", config.Get().TerminalName)
	return nil
}

func (r *REPL) banner() {
	s := r.session
	s.printf(StyleCommand, "welcome to %s", config.Get().TerminalName)
	s.printf(StyleInfo, "sandbox root: %s", s.fs.Path())
	s.printf(StyleInfo, "type 'help' for the list of commands")
}

func (r *REPL) runPrompt() (err error) {
	// go-prompt flips the terminal into raw mode, and a panic driven exit can
	// leave it stuck there. Capture the state up front and always restore it.
	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if state, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, state) }
		}
	}
	if restore != nil {
		defer restore()
	}

	exitRequested := system.NewAtomicBool(false)
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(promptExit); ok {
				err = nil
				return
			}
			panic(rec)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() {
			return
		}
		if stop := r.session.Dispatch(in); stop {
			exitRequested.Store(true)
			panic(promptExit{})
		}
	}

	options := []prompt.Option{
		prompt.OptionTitle(config.Get().TerminalName),
		prompt.OptionLivePrefix(func() (string, bool) {
			return r.session.Prompt(), true
		}),
		prompt.OptionPrefixTextColor(prompt.Yellow),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn: func(buf *prompt.Buffer) {
				// EOF on an empty line ends the session the same way a typed
				// exit does. With content on the line it is ignored.
				if buf.Text() == "" {
					exitRequested.Store(true)
					panic(promptExit{})
				}
			},
		}),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return exitRequested.Load()
		}),
	}
	// Without a seed the up arrow only reaches lines typed during the current
	// run, the persisted history carries recall across restarts.
	if r.session.history != nil {
		if lines := RecentLines(promptRecallDepth); len(lines) > 0 {
			options = append(options, prompt.OptionHistory(lines))
		}
	}

	p := prompt.New(executor, newCompleter(r.session).complete, options...)
	p.Run()
	return nil
}

func (r *REPL) runPiped() error {
	reader := bufio.NewReader(r.in)
	for {
		_, _ = fmt.Fprint(r.out, r.session.Prompt())
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Run whatever was sitting on the final unterminated line,
				// then treat the EOF itself as a request to leave.
				if line != "" {
					r.session.Dispatch(line)
				}
				_, _ = fmt.Fprintln(r.out)
				return nil
			}
			return errors.Wrap(err, "shell: failed reading input")
		}
		if stop := r.session.Dispatch(strings.TrimRight(line, "\r\n")); stop {
			return nil
		}
	}
}
