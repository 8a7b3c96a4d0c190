package core

import (
	"os"
	"syscall"
	"time"
)

func fileTimes(info os.FileInfo) (accessed, created *time.Time) {
	attrs, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return nil, nil
	}
	at := time.Unix(0, attrs.LastAccessTime.Nanoseconds()).UTC()
	ct := time.Unix(0, attrs.CreationTime.Nanoseconds()).UTC()
	return &at, &ct
}
