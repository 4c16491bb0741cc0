//go:build linux

package foreground

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// posixProber implements Prober against a PTY master file descriptor and the
// PID of the session leader (the shell started under the PTY).
type posixProber struct {
	fd        int
	leaderPID int
}

// New returns the Linux foreground prober for the given PTY master and the
// PID of the process started in it.
func New(ptyFd int, leaderPID int) Prober {
	return &posixProber{fd: ptyFd, leaderPID: leaderPID}
}

// Probe reads the PTY's foreground process group via TIOCGPGRP, then looks
// up that group's leader in /proc to read its command name. Per spec.md
// §4.3 any error collapses to (nil, nil) and the call never panics.
func (p *posixProber) Probe() (proc *Process, err error) {
	defer func() {
		if r := recover(); r != nil {
			proc, err = nil, nil
		}
	}()

	done := make(chan struct{})
	var result *Process
	go func() {
		result = p.probeSync()
		close(done)
	}()

	select {
	case <-done:
		return result, nil
	case <-time.After(Deadline):
		return nil, nil
	}
}

func (p *posixProber) probeSync() *Process {
	pgid, err := unix.IoctlGetInt(p.fd, unix.TIOCGPGRP)
	if err != nil || pgid <= 0 {
		return nil
	}
	// The shell itself is normally the session leader and its own process
	// group; if the foreground group is still the leader's, the shell is at
	// the prompt and there is no foreground child.
	if pgid == p.leaderPID {
		return nil
	}

	cmd := readComm(pgid)
	if cmd == "" {
		return nil
	}
	return &Process{PID: pgid, Command: cmd}
}

// readComm reads /proc/<pid>/comm, stripping the trailing newline. Returns
// "" if the process no longer exists or the read fails.
func readComm(pid int) string {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(string(bytes.TrimSpace(data)), "\n")
}
