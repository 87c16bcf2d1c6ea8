package progress

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentThread locks the calling goroutine to its current OS thread and
// restricts that thread to cpu. Locking is permanent for the life of the
// goroutine: a driver goroutine never yields its OS thread back to the Go
// scheduler's pool, matching the one-driver-per-core placement spec.md §4.6
// describes. This repository targets Linux/CXI hosts exclusively, so the
// unix.SchedSetaffinity call is unconditional rather than guarded by a build
// tag (see pkg/status/native.go for the same convention).
func pinCurrentThread(cpu int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
