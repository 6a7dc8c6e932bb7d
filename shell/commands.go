package shell

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"emperror.dev/errors"

	"github.com/burrowsh/burrow/shell/filesystem"
	"github.com/burrowsh/burrow/system"
)

// Command is a single entry in the dispatch table. Handlers receive the raw
// argument tail of the input line and do their own splitting, commands do not
// agree with each other on how arguments should look.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Summary string
	Run     func(s *Session, args string) error
}

// The dispatch table, in the order the help output lists commands. Dispatch
// itself goes through commandIndex so aliases resolve without a scan.
var commandTable = []*Command{
	{Name: "pwd", Usage: "pwd", Summary: "print the absolute path of the current directory", Run: cmdPwd},
	{Name: "ls", Usage: "ls [path]", Summary: "list the contents of a directory", Run: cmdLs},
	{Name: "cd", Usage: "cd [dir|..]", Summary: "change directory, no argument returns to the root", Run: cmdCd},
	{Name: "mkdir", Usage: "mkdir <name>", Summary: "create a new directory", Run: cmdMkdir},
	{Name: "rmdir", Usage: "rmdir <name>", Summary: "remove an empty directory", Run: cmdRmdir},
	{Name: "touch", Usage: "touch <name>", Summary: "create an empty file or update its timestamp", Run: cmdTouch},
	{Name: "rm", Usage: "rm [-r] <target>", Summary: "remove a file, or a directory with -r", Run: cmdRm},
	{Name: "cp", Usage: "cp <src> <dst>", Summary: "copy a file or directory", Run: cmdCp},
	{Name: "mv", Usage: "mv <src> <dst>", Summary: "move or rename a file or directory", Run: cmdMv},
	{Name: "cat", Usage: "cat <file>", Summary: "print the contents of a text file", Run: cmdCat},
	{Name: "stat", Usage: "stat <target>", Summary: "show detailed information about a file or directory", Run: cmdStat},
	{Name: "du", Usage: "du [path]", Summary: "report the total size of a directory", Run: cmdDu},
	{Name: "tree", Usage: "tree [path]", Summary: "recursively list a directory as a tree", Run: cmdTree},
	{Name: "archive", Usage: "archive [name ...]", Summary: "compress files into a tar.gz archive in the current directory", Run: cmdArchive},
	{Name: "extract", Usage: "extract <archive> [dst]", Summary: "extract an archive into a directory", Run: cmdExtract},
	{Name: "history", Usage: "history [n]", Summary: "show the most recent commands for this session", Run: cmdHistory},
	{Name: "clear", Usage: "clear", Summary: "clear the screen", Run: cmdClear},
	{Name: "help", Usage: "help [command]", Summary: "show this listing, or details for one command", Run: cmdHelp},
	{Name: "exit", Aliases: []string{"quit"}, Usage: "exit", Summary: "leave the shell", Run: cmdExit},
}

var commandIndex = make(map[string]*Command)

func init() {
	for _, cmd := range commandTable {
		commandIndex[cmd.Name] = cmd
		for _, a := range cmd.Aliases {
			commandIndex[a] = cmd
		}
	}
}

// Dispatch runs a single line of input against the session and reports
// whether the session should end afterwards. All output including error
// rendering goes through the session's sink, the returned flag is the only
// control signal a caller needs.
func (s *Session) Dispatch(line string) bool {
	name, args := splitCommand(line)
	if name == "" {
		return false
	}
	cmd, ok := commandIndex[name]
	if !ok {
		s.printf(StyleError, "unknown command: %s (type 'help' for the list of commands)", name)
		return false
	}
	err := cmd.Run(s, args)
	if s.history != nil {
		s.history.Save(cmd.Name, args, err)
	}
	if err == nil {
		return false
	}
	if errors.Is(err, errExitRequested) {
		return true
	}
	if errors.Is(err, errUsage) {
		s.printf(StyleError, "usage: %s", cmd.Usage)
		return false
	}
	newError(err).Render(s.console)
	return false
}

// splitCommand breaks an input line into the command name and the raw
// argument tail. The name is lowercased so casing never matters for lookups.
func splitCommand(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", ""
	}
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		return strings.ToLower(trimmed[:i]), strings.TrimSpace(trimmed[i+1:])
	}
	return strings.ToLower(trimmed), ""
}

func cmdPwd(s *Session, _ string) error {
	s.printf(StylePath, "%s", s.Path())
	return nil
}

func cmdLs(s *Session, args string) error {
	target := strings.TrimSpace(args)
	entries, err := s.fs.ListDirectory(s.resolve(target))
	if err != nil {
		return err
	}
	display := target
	if display == "" {
		display = s.DisplayPath()
	}
	s.printf(StyleInfo, "contents of %s", display)
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "TYPE\tNAME\tSIZE\n")
	for _, e := range entries {
		size := "--"
		if !e.IsDir() {
			size = system.FormatBytes(e.Size())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Kind(), e.Name(), size)
	}
	_ = tw.Flush()
	s.console.Write(StyleDefault, strings.TrimRight(b.String(), "\n"))
	return nil
}

func cmdCd(s *Session, args string) error {
	arg := strings.TrimSpace(args)
	if err := s.ChangeDirectory(arg); err != nil {
		// Missing and non-directory targets share one message here, matching
		// how the session reports them.
		if filesystem.IsErrorCode(err, filesystem.ErrNotExist) {
			return newError(err).SetMessage(fmt.Sprintf("directory not found: %s", arg))
		}
		return err
	}
	if s.cwd == "" {
		s.printf(StyleSuccess, "changed directory to root (~)")
	} else {
		s.printf(StyleSuccess, "changed directory to %s", s.cwd)
	}
	return nil
}

func cmdMkdir(s *Session, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return errors.WithStack(errUsage)
	}
	if err := s.fs.CreateDirectory(s.resolve(name), "/"); err != nil {
		return err
	}
	s.printf(StyleSuccess, "directory created: %s", name)
	return nil
}

func cmdRmdir(s *Session, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return errors.WithStack(errUsage)
	}
	if err := s.guardCurrentDirectory(name); err != nil {
		return err
	}
	if err := s.fs.RemoveDirectory(s.resolve(name)); err != nil {
		return err
	}
	s.printf(StyleSuccess, "directory removed: %s", name)
	return nil
}

func cmdTouch(s *Session, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return errors.WithStack(errUsage)
	}
	f, err := s.fs.Touch(s.resolve(name), os.O_RDWR|os.O_CREATE)
	if err != nil {
		return err
	}
	_ = f.Close()
	// Push the modification time forward for files that already existed,
	// which is the entire point of touching them.
	now := time.Now()
	if err := s.fs.Chtimes(s.resolve(name), now, now); err != nil {
		return err
	}
	s.printf(StyleSuccess, "touched: %s", name)
	return nil
}

func cmdRm(s *Session, args string) error {
	var recursive bool
	var operands []string
	// The -r flag is honored wherever it shows up on the line rather than
	// only ahead of the operand.
	for _, t := range strings.Fields(args) {
		if t == "-r" {
			recursive = true
			continue
		}
		operands = append(operands, t)
	}
	if len(operands) != 1 {
		return errors.WithStack(errUsage)
	}
	target := operands[0]
	if err := s.guardCurrentDirectory(target); err != nil {
		return err
	}
	if err := s.fs.Delete(s.resolve(target), recursive); err != nil {
		if filesystem.IsErrorCode(err, filesystem.ErrCodeIsDirectory) {
			return newError(err).SetMessage(fmt.Sprintf("%s is a directory, use 'rmdir' if it is empty or 'rm -r' to delete it with its contents", target))
		}
		return err
	}
	s.printf(StyleSuccess, "removed: %s", target)
	return nil
}

func cmdCp(s *Session, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return errors.WithStack(errUsage)
	}
	if err := s.fs.Copy(s.resolve(parts[0]), s.resolve(parts[1])); err != nil {
		return err
	}
	s.printf(StyleSuccess, "copied %s to %s", parts[0], parts[1])
	return nil
}

func cmdMv(s *Session, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return errors.WithStack(errUsage)
	}
	if err := s.guardCurrentDirectory(parts[0]); err != nil {
		return err
	}
	if err := s.fs.Rename(s.resolve(parts[0]), s.resolve(parts[1])); err != nil {
		return err
	}
	s.printf(StyleSuccess, "moved %s to %s", parts[0], parts[1])
	return nil
}

func cmdCat(s *Session, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return errors.WithStack(errUsage)
	}
	c, err := s.fs.ReadContents(s.resolve(name))
	if err != nil {
		return err
	}
	if c.Truncated {
		s.printf(StyleWarning, "%s is %s, showing only the first %d lines", name, system.FormatBytes(c.Size), filesystem.ContentPreviewLines)
		s.console.Write(StyleMuted, strings.TrimRight(c.Text, "\n"))
		return nil
	}
	s.printf(StyleInfo, "--- contents of %s ---", name)
	if c.Text != "" {
		s.console.Write(StyleMuted, strings.TrimRight(c.Text, "\n"))
	}
	s.printf(StyleInfo, "--- end of %s ---", name)
	return nil
}

func cmdStat(s *Session, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return errors.WithStack(errUsage)
	}
	st, err := s.fs.Stat(s.resolve(name))
	if err != nil {
		return err
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", st.Name())
	fmt.Fprintf(tw, "kind\t%s\n", st.Kind())
	fmt.Fprintf(tw, "size\t%s (%d bytes)\n", system.FormatBytes(st.Size()), st.Size())
	fmt.Fprintf(tw, "mode\t%s\n", st.Mode().String())
	fmt.Fprintf(tw, "modified\t%s\n", st.ModTime().Format(time.RFC3339))
	fmt.Fprintf(tw, "changed\t%s\n", st.CTime().Format(time.RFC3339))
	fmt.Fprintf(tw, "mime\t%s\n", st.Mimetype)
	_ = tw.Flush()
	s.console.Write(StyleDefault, strings.TrimRight(b.String(), "\n"))
	return nil
}

func cmdDu(s *Session, args string) error {
	target := strings.TrimSpace(args)
	if _, err := s.fs.Directory(s.resolve(target)); err != nil {
		return err
	}
	size, err := s.fs.DirectorySize(s.resolve(target))
	if err != nil {
		return err
	}
	display := target
	if display == "" {
		display = s.DisplayPath()
	}
	s.printf(StyleInfo, "%s (%d bytes) in %s", system.FormatBytes(size), size, display)
	return nil
}

func cmdTree(s *Session, args string) error {
	target := strings.TrimSpace(args)
	if _, err := s.fs.Directory(s.resolve(target)); err != nil {
		return err
	}
	display := target
	if display == "" {
		display = s.DisplayPath()
	}
	var b strings.Builder
	b.WriteString(display)
	if err := s.renderTree(&b, s.resolve(target), 1); err != nil {
		return err
	}
	s.console.Write(StyleDefault, b.String())
	return nil
}

// renderTree appends one indented line per entry below p, descending into
// directories depth first. Directories sort ahead of files at every level,
// symlinked directories are shown but never followed.
func (s *Session) renderTree(b *strings.Builder, p string, depth int) error {
	entries, err := s.fs.ListDirectory(p)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
	for _, e := range entries {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteString("/")
			if err := s.renderTree(b, path.Join(p, e.Name()), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func cmdArchive(s *Session, args string) error {
	st, err := s.fs.CompressFiles(s.cwd, strings.Fields(args))
	if err != nil {
		return err
	}
	s.printf(StyleSuccess, "created archive %s (%s)", st.Name(), system.FormatBytes(st.Size()))
	return nil
}

func cmdExtract(s *Session, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 1 && len(parts) != 2 {
		return errors.WithStack(errUsage)
	}
	dir := s.cwd
	if len(parts) == 2 {
		dir = s.resolve(parts[1])
	}
	// DecompressFile reads the archive relative to the extraction directory,
	// so rewrite the source path to hang off whatever directory was picked.
	rel, err := filepath.Rel(path.Clean("/"+dir), path.Clean("/"+s.resolve(parts[0])))
	if err != nil {
		return errors.WithStack(err)
	}
	if err := s.fs.DecompressFile(context.Background(), dir, rel); err != nil {
		return err
	}
	if len(parts) == 2 {
		s.printf(StyleSuccess, "extracted %s into %s", parts[0], parts[1])
	} else {
		s.printf(StyleSuccess, "extracted %s", parts[0])
	}
	return nil
}

func cmdHistory(s *Session, args string) error {
	arg := strings.TrimSpace(args)
	limit := 15
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return errors.WithStack(errUsage)
		}
		limit = n
	}
	if s.history == nil {
		s.console.Write(StyleWarning, "command history is disabled")
		return nil
	}
	rows, err := s.history.Recent(limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.console.Write(StyleInfo, "no commands recorded yet")
		return nil
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		line := r.Command
		if r.Arguments != "" {
			line += " " + r.Arguments
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Outcome(), line)
	}
	_ = tw.Flush()
	s.console.Write(StyleDefault, strings.TrimRight(b.String(), "\n"))
	return nil
}

func cmdClear(s *Session, _ string) error {
	s.console.Clear()
	return nil
}

func cmdHelp(s *Session, args string) error {
	arg := strings.TrimSpace(args)
	if arg != "" {
		cmd, ok := commandIndex[strings.ToLower(arg)]
		if !ok {
			return newError(errors.New("shell: help requested for unknown command")).
				SetMessage(fmt.Sprintf("unknown command: %s", arg))
		}
		s.printf(StyleCommand, "%s", cmd.Usage)
		s.printf(StyleDefault, "  %s", cmd.Summary)
		if len(cmd.Aliases) > 0 {
			s.printf(StyleMuted, "  aliases: %s", strings.Join(cmd.Aliases, ", "))
		}
		return nil
	}
	s.console.Write(StyleInfo, "available commands:")
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, cmd := range commandTable {
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.Usage, cmd.Summary)
	}
	_ = tw.Flush()
	s.console.Write(StyleDefault, strings.TrimRight(b.String(), "\n"))
	return nil
}

func cmdExit(s *Session, _ string) error {
	return errors.WithStack(errExitRequested)
}
