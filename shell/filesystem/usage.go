package filesystem

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/karrick/godirwalk"
)

type usageLookupTime struct {
	sync.RWMutex
	value time.Time
}

// Set sets the last time that a disk space lookup was performed.
func (ult *usageLookupTime) Set(t time.Time) {
	ult.Lock()
	ult.value = t
	ult.Unlock()
}

// Get the last time that we performed a disk space usage lookup.
func (ult *usageLookupTime) Get() time.Time {
	ult.RLock()
	defer ult.RUnlock()

	return ult.value
}

// CachedUsage returns the cached value for the amount of disk space used by
// the sandbox. Do not rely on this function for anything that needs an exact
// answer, it exists so status output can avoid walking the entire tree.
func (fs *Filesystem) CachedUsage() int64 {
	return atomic.LoadInt64(&fs.diskUsed)
}

// DiskUsage returns the total amount of disk space used by the sandbox.
// Because walking the tree is a taxing operation the result is cached and
// reused until the configured interval has passed, with incremental updates
// applied as files are written and deleted in between.
//
// A usage check interval of 0 disables the cache entirely and every call will
// perform a fresh walk of the sandbox.
func (fs *Filesystem) DiskUsage() (int64, error) {
	if fs.usageInterval != 0 {
		if fs.lastLookupTime.Get().After(time.Now().Add(time.Second * fs.usageInterval * -1)) {
			return atomic.LoadInt64(&fs.diskUsed), nil
		}
	}
	return fs.updateCachedDiskUsage()
}

// Updates the currently used disk space for the sandbox.
func (fs *Filesystem) updateCachedDiskUsage() (int64, error) {
	// Obtain an exclusive lock on this process so that we don't unintentionally run it at the same
	// time as another running process. Once the lock is available it'll read from the cache for the
	// second call rather than hitting the disk in parallel.
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Signal that we're currently updating the disk size so that other calls to the disk checking
	// functions can determine if they should queue up additional calls to this function. Ensure that
	// we always set this back to "false" when this process is done executing.
	fs.lookupInProgress.Store(true)
	defer fs.lookupInProgress.Store(false)

	size, err := fs.DirectorySize("/")

	// Always cache the size, even if there is an error. We want to always return that value
	// so that we don't cause an endless loop of determining the disk size if there is a temporary
	// error encountered.
	fs.lastLookupTime.Set(time.Now())

	atomic.StoreInt64(&fs.diskUsed, size)

	return size, err
}

// DirectorySize calculates the size of a directory and its descendants.
func (fs *Filesystem) DirectorySize(dir string) (int64, error) {
	d, err := fs.SafePath(dir)
	if err != nil {
		return 0, err
	}

	var size int64

	err = godirwalk.Walk(d, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, e *godirwalk.Dirent) error {
			// If this is a symlink then resolve the final destination of it before trying to continue
			// walking over its contents. If it resolves outside the sandbox just skip everything else
			// for it. Otherwise, allow it to continue.
			if e.IsSymlink() {
				if _, err := fs.SafePath(p); err != nil {
					if IsErrorCode(err, ErrCodePathResolution) {
						return godirwalk.SkipThis
					}

					return err
				}
			}

			if !e.IsDir() {
				if st, err := os.Lstat(p); err == nil {
					atomic.AddInt64(&size, st.Size())
				}
			}

			return nil
		},
	})

	return size, errors.WrapIf(err, "filesystem: directorysize: failed to walk directory")
}

// Updates the disk usage for the Filesystem instance.
func (fs *Filesystem) addDisk(i int64) int64 {
	return atomic.AddInt64(&fs.diskUsed, i)
}
