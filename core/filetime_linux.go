package core

import (
	"os"
	"syscall"
	"time"
)

// fileTimes extracts access and creation times. Linux stat(2) has no birth
// time, so creation is always nil here.
func fileTimes(info os.FileInfo) (accessed, created *time.Time) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, nil
	}
	at := time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec)).UTC()
	return &at, nil
}
