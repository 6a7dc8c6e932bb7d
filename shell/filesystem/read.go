package filesystem

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"emperror.dev/errors"
)

const (
	// Files larger than this are never loaded into memory in full, a preview of
	// the first ContentPreviewLines lines is handed back instead.
	maxFullReadSize = 10 * 1024 * 1024

	// ContentPreviewLines is the number of lines returned for a file too large
	// to be read in full.
	ContentPreviewLines = 50
)

// Contents is the decoded result of reading a file back for display.
type Contents struct {
	// Text holds the entire file when Truncated is false, otherwise only the
	// first ContentPreviewLines lines of it.
	Text string
	// Size is the total size of the file on disk regardless of truncation.
	Size      int64
	Truncated bool
}

// ReadContents reads a file back for display on a terminal. The file is
// stat-ed exactly once as part of the open, if it is larger than
// maxFullReadSize only the beginning of it is read and the result is flagged
// as truncated. Content that does not decode as text is refused outright
// rather than returned partially garbled.
func (fs *Filesystem) ReadContents(p string) (*Contents, error) {
	f, st, err := fs.File(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if st.Size() == 0 {
		return &Contents{}, nil
	}
	if !isTextMime(st.Mimetype) {
		return nil, errors.WithStack(&Error{code: ErrCodeNotText, resolved: st.Name()})
	}

	if st.Size() > maxFullReadSize {
		br := bufio.NewReader(f)
		var b strings.Builder
		for i := 0; i < ContentPreviewLines; i++ {
			line, err := br.ReadString('\n')
			b.WriteString(line)
			if err != nil {
				break
			}
		}
		text := b.String()
		if !utf8.ValidString(text) {
			return nil, errors.WithStack(&Error{code: ErrCodeNotText, resolved: st.Name()})
		}
		return &Contents{Text: text, Size: st.Size(), Truncated: true}, nil
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, wrapError(err, st.Name())
	}
	if !utf8.Valid(b) {
		return nil, errors.WithStack(&Error{code: ErrCodeNotText, resolved: st.Name()})
	}
	return &Contents{Text: string(b), Size: st.Size()}, nil
}

// isTextMime checks whether a detected mime type is something that can be
// written to a terminal. Structured application types that are plain text
// under the hood are allowed through alongside the text/ tree.
func isTextMime(m string) bool {
	if strings.HasPrefix(m, "text/") {
		return true
	}
	for _, t := range []string{"application/json", "application/xml", "application/javascript", "application/x-sh"} {
		if m == t || strings.HasPrefix(m, t+";") {
			return true
		}
	}
	return false
}
