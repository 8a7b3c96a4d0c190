package core

import (
	"os"
	"syscall"
	"time"
)

func fileTimes(info os.FileInfo) (accessed, created *time.Time) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, nil
	}
	at := time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec).UTC()
	bt := time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec).UTC()
	return &at, &bt
}
