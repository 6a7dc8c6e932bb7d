package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"emperror.dev/errors"
	"golang.org/x/sync/errgroup"
)

// SafePath normalizes a path being passed in to ensure the user is not able to
// escape from the sandbox root. After normalization, if the path still lives
// within the root it is returned. If they managed to "escape" an error will be
// returned.
//
// The target of the path does not need to exist: requests for files that have
// not yet been created are validated by walking up the tree until an existing
// ancestor is found and confirming that the ancestor resolves into the root.
func (fs *Filesystem) SafePath(p string) (string, error) {
	var nonExistentPathResolution string

	// Start with a cleaned up path before checking the more complex bits.
	r := fs.unsafeFilePath(p)

	// At the same time, evaluate the symlink status and determine where this file or folder
	// is truly pointing to.
	ep, err := filepath.EvalSymlinks(r)
	if err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(err, "filesystem: failed to evaluate symlink")
	} else if os.IsNotExist(err) {
		// A path that does not exist can still be present as a symlink whose
		// target was never created. Creating through one would place the file
		// at the link target rather than at the requested path, so follow the
		// chain by hand and validate wherever it ends up instead.
		if st, lerr := os.Lstat(r); lerr == nil && st.Mode()&os.ModeSymlink != 0 {
			t, terr := fs.unsafeResolveLink(p, r)
			if terr != nil {
				return "", terr
			}
			return fs.SafePath(t)
		}

		// The requested path doesn't exist, so at this point we need to iterate up the
		// path chain until we hit a directory that _does_ exist and can be validated.
		parts := strings.Split(filepath.Dir(r), "/")

		var try string
		// Range over all of the path parts and form directory pathings from the end
		// moving up until we have a valid resolution or we run out of paths to try.
		for k := range parts {
			try = strings.Join(parts[:(len(parts)-k)], "/")

			if !fs.unsafeIsInSandbox(try) {
				break
			}

			t, err := filepath.EvalSymlinks(try)
			if err == nil {
				nonExistentPathResolution = t
				break
			}
		}
	}

	// If the new path doesn't start with the sandbox root there is clearly an escape
	// attempt going on, and we should NOT resolve this path for them.
	if nonExistentPathResolution != "" {
		if !fs.unsafeIsInSandbox(nonExistentPathResolution) {
			return "", NewBadPathResolution(p, nonExistentPathResolution)
		}

		// If the nonExistentPathResolution variable is not empty then the initial path requested
		// did not exist and we looped through the pathway until we found a match. At this point
		// we've confirmed the first matched pathway exists in the sandbox root, so we can go
		// ahead and just return the path that was requested initially.
		return r, nil
	}

	// If the requested path from EvalSymlinks begins with the sandbox root go ahead
	// and return it. If not we'll return an error which will block any further action
	// on the file.
	if fs.unsafeIsInSandbox(ep) {
		return ep, nil
	}

	return "", NewBadPathResolution(p, r)
}

// Generate a path to the file by cleaning it up and appending the sandbox root to it. This
// DOES NOT guarantee that the file resolves within the sandbox. You'll want to use the
// fs.unsafeIsInSandbox(p) function to confirm.
func (fs *Filesystem) unsafeFilePath(p string) string {
	// Calling filepath.Clean on the joined directory will resolve it to the absolute path,
	// removing any ../ type of resolution arguments, and leaving us with a direct path link.
	//
	// This will also trim the existing root path off the beginning of the path passed to
	// the function since that can get a bit messy.
	return filepath.Clean(filepath.Join(fs.Path(), strings.TrimPrefix(p, fs.Path())))
}

// Check that the path string starts with the sandbox root path. This function DOES NOT
// validate that the rest of the path does not end up resolving out of this directory, or
// that the targeted file or folder is not a symlink doing the same thing.
func (fs *Filesystem) unsafeIsInSandbox(p string) bool {
	return strings.HasPrefix(strings.TrimSuffix(p, "/")+"/", strings.TrimSuffix(fs.Path(), "/")+"/")
}

// unsafeResolveLink follows a chain of symlinks from r until it reaches a path
// that is not itself a symlink, without requiring that final target to exist.
// Every hop along the way must stay inside the sandbox, a chain is rejected as
// soon as one of its links points anywhere else.
func (fs *Filesystem) unsafeResolveLink(p string, r string) (string, error) {
	t := r
	for i := 0; i < 255; i++ {
		st, err := os.Lstat(t)
		if err != nil || st.Mode()&os.ModeSymlink == 0 {
			return t, nil
		}
		link, err := os.Readlink(t)
		if err != nil {
			return "", errors.Wrap(err, "filesystem: failed to read link")
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(t), link)
		}
		t = filepath.Clean(link)
		if !fs.unsafeIsInSandbox(t) {
			return "", NewBadPathResolution(p, t)
		}
	}
	return "", errors.New("filesystem: too many links")
}

// ParallelSafePath executes the fs.SafePath function in parallel against an array of
// paths. If any of the calls fails an error will be returned.
func (fs *Filesystem) ParallelSafePath(paths []string) ([]string, error) {
	var cleaned []string

	// Simple locker function to avoid racy appends to the array of cleaned paths.
	m := new(sync.Mutex)
	push := func(c string) {
		m.Lock()
		cleaned = append(cleaned, c)
		m.Unlock()
	}

	// Create an error group that we can use to run processes in parallel while retaining
	// the ability to cancel the entire process immediately should any of it fail.
	g, ctx := errgroup.WithContext(context.Background())

	for _, p := range paths {
		// Create copy so we can use it within the goroutine correctly.
		pi := p

		// Check each path in a separate goroutine. If the context is canceled because one
		// of the other paths failed to validate abort this process.
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				if c, err := fs.SafePath(pi); err != nil {
					return err
				} else {
					push(c)
				}

				return nil
			}
		})
	}

	// Block until all of the routines finish and have returned a value.
	return cleaned, g.Wait()
}
