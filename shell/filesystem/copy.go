package filesystem

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/karrick/godirwalk"
)

// Copy duplicates a file or directory tree inside the sandbox. A regular file
// is copied to the destination path exactly as given, overwriting anything
// already there. A directory is copied recursively: if the destination exists
// as a directory the source is placed into it under its own name, otherwise
// the destination itself becomes the copy. Existing files in the destination
// tree are overwritten, everything else is left in place.
func (fs *Filesystem) Copy(src string, dst string) error {
	cleanedSrc, err := fs.SafePath(src)
	if err != nil {
		return err
	}
	cleanedDst, err := fs.SafePath(dst)
	if err != nil {
		return err
	}

	st, err := os.Stat(cleanedSrc)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&Error{code: ErrNotExist, resolved: cleanedSrc, err: err})
		}
		return wrapError(err, cleanedSrc)
	}

	switch {
	case st.Mode().IsRegular():
		return fs.copyFileContents(cleanedSrc, cleanedDst, st)
	case st.IsDir():
		return fs.copyDirectory(cleanedSrc, cleanedDst)
	default:
		// Sockets, devices, pipes and other special files cannot be copied.
		return errors.WithStack(&Error{code: ErrCodeInvalidSource, resolved: cleanedSrc})
	}
}

// copyFileContents copies a single file to the target location, carrying the
// source permissions and timestamps over to the new file. If the target
// already exists it is truncated and overwritten in place.
func (fs *Filesystem) copyFileContents(src, dst string, st os.FileInfo) error {
	var currentSize int64
	if dstSt, err := os.Lstat(dst); err == nil {
		if dstSt.IsDir() {
			return errors.WithStack(&Error{code: ErrCodeIsDirectory, resolved: dst})
		}
		if os.SameFile(st, dstSt) {
			return errors.New("filesystem: source and destination are the same file")
		}
		currentSize = dstSt.Size()
	}

	source, err := os.Open(src)
	if err != nil {
		return wrapError(err, src)
	}
	defer source.Close()

	o := &fileOpener{}
	file, err := o.open(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&Error{code: ErrNotExist, resolved: dst, err: err})
		}
		return wrapError(err, dst)
	}
	defer file.Close()

	buf := pool.Get().(*[]byte)
	defer pool.Put(buf)
	sz, err := io.CopyBuffer(file, source, *buf)
	if err != nil {
		return wrapError(err, dst)
	}
	fs.addDisk(sz - currentSize)

	// A brand new file picks its mode up from the open call above, but a file
	// that was overwritten keeps whatever mode it had before. Apply the source
	// values to both so the copy always matches.
	if err := os.Chmod(dst, st.Mode().Perm()); err != nil {
		return wrapError(err, dst)
	}
	if err := os.Chtimes(dst, st.ModTime(), st.ModTime()); err != nil {
		return wrapError(err, dst)
	}
	return nil
}

// copyDirectory recursively copies the src tree to the resolved target. The
// copy is additive, directories that already exist in the target are reused
// and files that already exist are overwritten.
func (fs *Filesystem) copyDirectory(src, dst string) error {
	// Copying a directory into itself or one of its own descendants would
	// recurse endlessly, refuse the request before touching anything.
	if strings.HasPrefix(strings.TrimSuffix(dst, "/")+"/", strings.TrimSuffix(src, "/")+"/") {
		return errors.WithStack(&Error{code: ErrCodeInvalidTarget, resolved: dst})
	}

	target := dst
	if dstSt, err := os.Stat(dst); err == nil {
		if !dstSt.IsDir() {
			return errors.WithStack(&Error{code: ErrCodeNotDirectory, resolved: dst})
		}
		// When the target already exists as a directory the source is copied
		// into it under its own name rather than replacing it.
		target = filepath.Join(dst, filepath.Base(src))
		if target == src {
			return errors.WithStack(&Error{code: ErrCodeInvalidTarget, resolved: target})
		}
	} else if !os.IsNotExist(err) {
		return wrapError(err, dst)
	}

	err := godirwalk.Walk(src, &godirwalk.Options{
		FollowSymbolicLinks: false,
		Unsorted:            true,
		Callback: func(p string, e *godirwalk.Dirent) error {
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			t := filepath.Join(target, rel)

			if e.IsSymlink() {
				// Recreate the link itself rather than following it and
				// duplicating whatever it points at. Reading through the copy
				// is still subject to the usual path resolution rules.
				link, err := os.Readlink(p)
				if err != nil {
					return err
				}
				if err := os.Symlink(link, t); err != nil && !os.IsExist(err) {
					return err
				}
				return nil
			}

			if e.IsDir() {
				info, err := os.Stat(p)
				if err != nil {
					return err
				}
				return os.MkdirAll(t, info.Mode().Perm())
			}

			if e.IsRegular() {
				info, err := os.Stat(p)
				if err != nil {
					return err
				}
				return fs.copyFileContents(p, t, info)
			}

			// Anything else, sockets and the like, is skipped entirely.
			return nil
		},
	})

	return wrapError(err, src)
}
