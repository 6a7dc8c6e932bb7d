package shell

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

// Style classifies a block of session output so the sink rendering it can
// decide how to present it. Command handlers only ever deal in styles, they
// know nothing about terminals or escape sequences.
type Style int

const (
	StyleDefault Style = iota
	StyleInfo
	StyleSuccess
	StyleWarning
	StyleError
	StylePath
	StyleCommand
	StyleMuted
)

// Sink receives everything a session writes for whoever is driving it. The
// interactive shell connects one to a colored terminal, tests swap in a
// recorder so output can be asserted on without a terminal anywhere nearby.
type Sink interface {
	// Write renders a single line, or a preformatted block of lines, in the
	// given style. The trailing newline is appended by the sink.
	Write(style Style, text string)

	// Clear wipes the backing display if there is one to wipe.
	Clear()
}

var styles = map[Style]*color.Color{
	StyleInfo:    color.New(color.FgCyan, color.Faint),
	StyleSuccess: color.New(color.FgGreen, color.Bold),
	StyleWarning: color.New(color.FgMagenta),
	StyleError:   color.New(color.FgRed, color.Bold),
	StylePath:    color.New(color.FgCyan),
	StyleCommand: color.New(color.FgYellow, color.Bold),
	StyleMuted:   color.New(color.Faint),
}

// Console is the terminal backed Sink used by the interactive shell.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console writing ANSI colored output to the given file,
// wrapping it so colors survive on platforms without native escape support.
func NewConsole(f *os.File) *Console {
	return &Console{w: colorable.NewColorable(f)}
}

func (c *Console) Write(style Style, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := styles[style]; ok {
		_, _ = s.Fprintln(c.w, text)
		return
	}
	_, _ = fmt.Fprintln(c.w, text)
}

// Clear wipes the terminal using the same escape sequence the clear binary
// emits and leaves the cursor in the top left corner.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprint(c.w, "\x1b[2J\x1b[H")
}
