package shell

import (
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/patrickmn/go-cache"
)

// completer feeds tab completion for the interactive prompt. Directory
// listings are cached for a few seconds so leaning on the tab key does not
// turn into a stream of filesystem walks over the same directory.
type completer struct {
	session *Session
	names   []prompt.Suggest
	entries *cache.Cache
}

func newCompleter(s *Session) *completer {
	names := make([]prompt.Suggest, 0, len(commandTable))
	for _, cmd := range commandTable {
		names = append(names, prompt.Suggest{Text: cmd.Name, Description: cmd.Summary})
	}
	return &completer{
		session: s,
		names:   names,
		entries: cache.New(3*time.Second, 30*time.Second),
	}
}

// complete suggests command names while the first word is being typed and
// entries from the session's current directory for everything after it.
func (c *completer) complete(d prompt.Document) []prompt.Suggest {
	before := strings.TrimLeft(d.TextBeforeCursor(), " \t")
	if !strings.ContainsAny(before, " \t") {
		return prompt.FilterHasPrefix(c.names, d.GetWordBeforeCursor(), true)
	}
	return prompt.FilterHasPrefix(c.listEntries(), d.GetWordBeforeCursor(), true)
}

// listEntries returns suggestions for the contents of the current directory,
// consulting the cache first.
func (c *completer) listEntries() []prompt.Suggest {
	key := c.session.Path()
	if v, ok := c.entries.Get(key); ok {
		return v.([]prompt.Suggest)
	}
	out := make([]prompt.Suggest, 0)
	if listed, err := c.session.fs.ListDirectory(c.session.cwd); err == nil {
		for i := range listed {
			e := listed[i]
			text := e.Name()
			if e.IsDir() {
				text += "/"
			}
			out = append(out, prompt.Suggest{Text: text, Description: e.Kind()})
		}
	}
	c.entries.Set(key, out, cache.DefaultExpiration)
	return out
}
