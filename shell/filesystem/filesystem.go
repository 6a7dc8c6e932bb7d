package filesystem

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/gabriel-vasile/mimetype"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/system"
)

type Filesystem struct {
	mu               sync.RWMutex
	lastLookupTime   *usageLookupTime
	lookupInProgress *system.AtomicBool
	diskUsed         int64
	usageInterval    time.Duration

	// The sandbox root path for this Filesystem instance. Every path handed to
	// one of the methods on this struct is resolved against this directory and
	// rejected if it would land outside of it.
	root string

	isTest bool
}

// New creates a new Filesystem instance confined to the given root directory.
func New(root string) *Filesystem {
	return &Filesystem{
		root:             root,
		usageInterval:    time.Duration(config.Get().System.UsageCheckInterval),
		lastLookupTime:   &usageLookupTime{},
		lookupInProgress: system.NewAtomicBool(false),
	}
}

// Path returns the sandbox root path for the Filesystem instance.
func (fs *Filesystem) Path() string {
	return fs.root
}

// File returns a reader for a file instance as well as the stat information.
// The stat happens as part of the open, callers needing both never issue a
// second stat against the disk.
func (fs *Filesystem) File(p string) (*os.File, Stat, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, Stat{}, errors.WithStackIf(err)
	}
	st, err := os.Stat(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Stat{}, newFilesystemError(ErrNotExist, err)
		}
		return nil, Stat{}, wrapError(err, cleaned)
	}
	if st.IsDir() {
		return nil, Stat{}, newFilesystemError(ErrCodeIsDirectory, nil)
	}
	// Check this before touching the contents in any way, both the mimetype
	// detection and a plain open would block forever on a named pipe.
	if !st.Mode().IsRegular() {
		return nil, Stat{}, newFilesystemError(ErrCodeInvalidSource, nil)
	}
	f, err := os.Open(cleaned)
	if err != nil {
		return nil, Stat{}, wrapError(err, cleaned)
	}
	stat := Stat{FileInfo: st, Mimetype: "application/octet-stream"}
	if m, err := mimetype.DetectReader(f); err == nil {
		stat.Mimetype = m.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, Stat{}, wrapError(err, cleaned)
	}
	return f, stat, nil
}

// Directory confirms that the given path resolves to an existing directory
// inside the sandbox and returns the resolved path. A path that exists but is
// not a directory reports the same not-found code a missing one does, callers
// changing into a directory do not care which case they hit.
func (fs *Filesystem) Directory(p string) (string, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return "", errors.WithStackIf(err)
	}
	st, err := os.Stat(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WithStack(&Error{code: ErrNotExist, resolved: cleaned, err: err})
		}
		return "", wrapError(err, cleaned)
	}
	if !st.IsDir() {
		return "", errors.WithStack(&Error{code: ErrNotExist, resolved: cleaned})
	}
	return cleaned, nil
}

// Touch acts by creating the given file and path on the disk if it is not
// present already. If it is present the file is opened with the flags provided,
// which notably will only truncate the contents if os.O_TRUNC is passed. The
// opened file is then returned to the caller.
func (fs *Filesystem) Touch(p string, flag int) (*os.File, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cleaned, flag, 0o644)
	if err == nil {
		return f, nil
	}
	if st, serr := os.Stat(cleaned); serr == nil && st.IsDir() {
		return nil, errors.WithStack(&Error{code: ErrCodeIsDirectory, resolved: cleaned, err: err})
	}
	// If the error is not because it doesn't exist then we just need to bail at this point.
	if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "filesystem: touch: failed to open file handle")
	}
	// Create the path leading up to the file we're trying to create if any part
	// of it is missing.
	if _, err := os.Stat(filepath.Dir(cleaned)); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
			return nil, errors.Wrap(err, "filesystem: touch: failed to create directory tree")
		}
	}
	o := &fileOpener{}
	// Try to open the file now that we have created the pathing necessary for it.
	f, err = o.open(cleaned, flag, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "filesystem: touch: failed to open file with wait")
	}
	return f, nil
}

// Writefile writes a file to the sandbox. If the file does not already exist
// one will be created, along with any missing directories leading up to it.
// This will also properly recalculate the disk space used by the sandbox when
// writing new files or modifying existing ones.
func (fs *Filesystem) Writefile(p string, r io.Reader) error {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return err
	}

	var currentSize int64
	stat, err := os.Stat(cleaned)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "filesystem: writefile: failed to stat file")
	} else if err == nil {
		if stat.IsDir() {
			return errors.WithStack(&Error{code: ErrCodeIsDirectory, resolved: cleaned})
		}
		currentSize = stat.Size()
	}

	// Touch the file and return the handle to it at this point. This will
	// create the file and any necessary directories.
	file, err := fs.Touch(cleaned, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := pool.Get().(*[]byte)
	defer pool.Put(buf)
	sz, err := io.CopyBuffer(file, r, *buf)
	if err != nil {
		return wrapError(err, cleaned)
	}

	// Adjust the disk usage to account for the old size and the new size of the file.
	fs.addDisk(sz - currentSize)

	return nil
}

// CreateDirectory creates a new directory (name) at a specified path (p)
// inside the sandbox. Only the final element is created, missing intermediate
// directories result in an error.
func (fs *Filesystem) CreateDirectory(name string, p string) error {
	cleaned, err := fs.SafePath(path.Join(p, name))
	if err != nil {
		return err
	}
	if err := os.Mkdir(cleaned, 0o755); err != nil {
		if os.IsExist(err) {
			return errors.WithStack(&Error{code: ErrCodeAlreadyExists, resolved: cleaned, err: err})
		}
		if os.IsNotExist(err) {
			return errors.WithStack(&Error{code: ErrNotExist, resolved: cleaned, err: err})
		}
		return wrapError(err, cleaned)
	}
	return nil
}

// Rename moves (or renames) a file or directory.
func (fs *Filesystem) Rename(from string, to string) error {
	cleanedFrom, err := fs.SafePath(from)
	if err != nil {
		return errors.WithStack(err)
	}

	cleanedTo, err := fs.SafePath(to)
	if err != nil {
		return errors.WithStack(err)
	}

	// If the target file or directory already exists the rename function will fail, so just
	// bail out now.
	if _, err := os.Stat(cleanedTo); err == nil {
		return os.ErrExist
	}

	if cleanedTo == fs.Path() {
		return errors.New("attempting to move into an invalid directory space")
	}

	d := strings.TrimSuffix(cleanedTo, path.Base(cleanedTo))
	// Ensure that the directory we're moving into exists correctly on the system. Only do this if
	// we're not at the root directory level.
	if d != fs.Path() {
		if mkerr := os.MkdirAll(d, 0o755); mkerr != nil {
			return errors.WithMessage(mkerr, "failed to create directory structure for move")
		}
	}

	if err := os.Rename(cleanedFrom, cleanedTo); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (fs *Filesystem) Chmod(path string, mode os.FileMode) error {
	cleaned, err := fs.SafePath(path)
	if err != nil {
		return err
	}

	if fs.isTest {
		return nil
	}

	if err := os.Chmod(cleaned, mode); err != nil {
		return err
	}

	return nil
}

func (fs *Filesystem) Chtimes(path string, atime, mtime time.Time) error {
	cleaned, err := fs.SafePath(path)
	if err != nil {
		return err
	}

	if fs.isTest {
		return nil
	}

	if err := os.Chtimes(cleaned, atime, mtime); err != nil {
		return err
	}

	return nil
}

// Delete removes a file or folder from the sandbox. Directories are only
// removed when recursive is set, matching the rm command this call backs.
// Prevents the user from accidentally (or maliciously) removing the sandbox
// root itself.
func (fs *Filesystem) Delete(p string, recursive bool) error {
	// This is one of the few places in the codebase where we're explicitly not
	// using the SafePath functionality when working with user provided input.
	// If we did, you would not be able to delete a file that is a symlink
	// pointing to a location outside of the sandbox.
	//
	// We also want to avoid resolving a symlink that points _within_ the
	// sandbox and thus deleting the actual source file for the symlink rather
	// than the symlink itself. For these purposes just resolve the actual file
	// path using filepath.Join() and confirm that the path exists within the
	// sandbox.
	resolved := fs.unsafeFilePath(p)
	if !fs.unsafeIsInSandbox(resolved) {
		return NewBadPathResolution(p, resolved)
	}

	// Block any whoopsies.
	if resolved == fs.Path() {
		return errors.New("cannot delete the sandbox root directory")
	}

	st, err := os.Lstat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&Error{code: ErrNotExist, resolved: resolved, err: err})
		}
		return wrapError(err, resolved)
	}

	if st.IsDir() {
		if !recursive {
			return errors.WithStack(&Error{code: ErrCodeIsDirectory, resolved: resolved})
		}
		if s, err := fs.DirectorySize(p); err == nil {
			fs.addDisk(-s)
		} else {
			fs.error(err).Warn("error while attempting to determine size of directory before deletion")
		}
		// RemoveAll deletes as much of the tree as it can and reports the
		// first error it ran into, which is exactly the behavior we want for
		// a recursive removal.
		return wrapError(os.RemoveAll(resolved), resolved)
	}

	fs.addDisk(-st.Size())
	return wrapError(os.Remove(resolved), resolved)
}

// RemoveDirectory removes a single empty directory from the sandbox.
func (fs *Filesystem) RemoveDirectory(p string) error {
	// Resolved manually for the same reason as Delete: a symlinked directory
	// should never result in the link destination being touched.
	resolved := fs.unsafeFilePath(p)
	if !fs.unsafeIsInSandbox(resolved) {
		return NewBadPathResolution(p, resolved)
	}

	if resolved == fs.Path() {
		return errors.New("cannot remove the sandbox root directory")
	}

	st, err := os.Lstat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&Error{code: ErrNotExist, resolved: resolved, err: err})
		}
		return wrapError(err, resolved)
	}
	if !st.IsDir() {
		return errors.WithStack(&Error{code: ErrCodeNotDirectory, resolved: resolved})
	}

	if err := os.Remove(resolved); err != nil {
		// Whether the directory still has entries in it or the operating
		// system refused the removal, the outcome for the caller is the same.
		return errors.WithStack(&Error{code: ErrCodeNotEmpty, resolved: resolved, err: err})
	}
	return nil
}

type fileOpener struct {
	busy uint
}

// Attempts to open a given file up to "attempts" number of times, using a backoff. If the file
// cannot be opened because of a "text file busy" error, we will attempt until the number of attempts
// has been exhaused, at which point we will abort with an error.
func (fo *fileOpener) open(path string, flags int, perm os.FileMode) (*os.File, error) {
	for {
		f, err := os.OpenFile(path, flags, perm)

		// If there is an error because the text file is busy, go ahead and sleep for a few
		// hundred milliseconds and then try again up to three times before just returning the
		// error back to the caller.
		//
		// Based on code from: https://github.com/golang/go/issues/22220#issuecomment-336458122
		if err != nil && fo.busy < 3 && strings.Contains(err.Error(), "text file busy") {
			time.Sleep(100 * time.Millisecond << fo.busy)
			fo.busy++
			continue
		}

		return f, err
	}
}

// ListDirectory lists the contents of a given directory and returns stat
// information about each file and folder within it.
func (fs *Filesystem) ListDirectory(p string) ([]Stat, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(&Error{code: ErrNotExist, resolved: cleaned, err: err})
		}
		if st, serr := os.Stat(cleaned); serr == nil && !st.IsDir() {
			return nil, errors.WithStack(&Error{code: ErrCodeNotDirectory, resolved: cleaned, err: err})
		}
		return nil, wrapError(err, cleaned)
	}

	var wg sync.WaitGroup

	out := make([]Stat, len(entries))

	// Iterate over all of the files and directories returned and perform an async process
	// to get the mime-type for them all.
	for i, entry := range entries {
		wg.Add(1)

		go func(idx int, de os.DirEntry) {
			defer wg.Done()

			f, err := de.Info()
			if err != nil {
				// The entry disappeared between the listing and the stat call,
				// leave the hole in the output and filter it below.
				return
			}

			var m *mimetype.MIME
			d := "inode/directory"
			if !f.IsDir() {
				cleanedp := filepath.Join(cleaned, f.Name())
				if f.Mode()&os.ModeSymlink != 0 {
					cleanedp, _ = fs.SafePath(filepath.Join(cleaned, f.Name()))
				}

				// Don't try to detect the type on a pipe, this will just hang the
				// application and you'll never get a response back.
				if cleanedp != "" && f.Mode()&os.ModeNamedPipe == 0 {
					if m, err = mimetype.DetectFile(filepath.Join(cleaned, f.Name())); err != nil {
						d = "application/octet-stream"
					}
				} else {
					// Just pass this for an unknown type because the file could not safely be
					// resolved within the sandbox.
					d = "application/octet-stream"
				}
			}

			st := Stat{FileInfo: f, Mimetype: d}
			if m != nil {
				st.Mimetype = m.String()
			}
			out[idx] = st
		}(i, entry)
	}

	wg.Wait()

	listed := out[:0]
	for _, st := range out {
		if st.FileInfo != nil {
			listed = append(listed, st)
		}
	}

	// Sort the output by name. The listing above ran through an asynchronous
	// process so the order at this point is random. This is a plain bytewise
	// comparison, so uppercase names sort ahead of lowercase ones.
	sort.SliceStable(listed, func(i, j int) bool {
		return listed[i].Name() < listed[j].Name()
	})

	return listed, nil
}
