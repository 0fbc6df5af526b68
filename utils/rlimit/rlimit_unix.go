// +build !windows

package rlimit

import (
	"log"
	"syscall"
)

// wantNoFile is the open-file-descriptor limit we'd like to run with.
// The reactor variant in particular can hold one fd per connection plus
// its epoll fd, so a low default ulimit caps concurrency artificially.
const wantNoFile = 65536

// Raise attempts to increase the process' open file descriptor limit to
// wantNoFile, capped by the hard limit. It only logs on failure; a low
// ulimit is not fatal, it just caps how many connections can be held
// open at once.
func Raise() {
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Printf("Failed to get RLIMIT_NOFILE: %v", err)
		return
	}

	want := uint64(wantNoFile)
	if rlimit.Max < want {
		want = rlimit.Max
	}
	if rlimit.Cur >= want {
		return
	}

	rlimit.Cur = want
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		log.Printf("Failed to raise RLIMIT_NOFILE to %d: %v", want, err)
	}
}
