//go:build !linux

package foreground

// stubProber is the non-Linux backend: the probe is unimplemented there, so
// it always collapses to nil per spec.md §4.3 ("any error collapses to
// null").
type stubProber struct{}

// New returns the non-Linux foreground prober stub. ptyFd and leaderPID are
// accepted to match the Linux constructor's signature but unused.
func New(ptyFd int, leaderPID int) Prober {
	return stubProber{}
}

func (stubProber) Probe() (*Process, error) {
	return nil, nil
}
