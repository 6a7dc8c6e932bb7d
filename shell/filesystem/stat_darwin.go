package filesystem

import (
	"syscall"
	"time"
)

// CTime returns the time that the file/folder was last changed.
func (s *Stat) CTime() time.Time {
	if st, ok := s.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec)
	}
	return time.Time{}
}
