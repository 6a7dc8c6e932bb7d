package filesystem

import (
	"syscall"
	"time"
)

// CTime returns the time that the file/folder was last changed. Note that on
// Linux this is the inode change time, not the creation time.
func (s *Stat) CTime() time.Time {
	if st, ok := s.Sys().(*syscall.Stat_t); ok {
		// Do not remove these "redundant" type-casts, they are required for 32-bit builds to work.
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return time.Time{}
}
