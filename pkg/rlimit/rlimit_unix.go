//go:build !windows

// Package rlimit raises the process's open-file-descriptor budget at
// startup so the tunnel's bridge pool and public listeners don't run out of
// file descriptors under load.
package rlimit

import "golang.org/x/sys/unix"

// Target is the ceiling requested for RLIMIT_NOFILE.
const Target = 1_000_000

// Raise attempts to raise the soft RLIMIT_NOFILE to Target, or to the hard
// limit when that is lower than Target. It is best-effort: a failure of
// Getrlimit or Setrlimit is returned to the caller to log, never treated as
// fatal.
func Raise() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}

	target := uint64(Target)
	if rlim.Max < target {
		target = rlim.Max
	}
	if rlim.Cur >= target {
		return nil
	}

	rlim.Cur = target
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim)
}
