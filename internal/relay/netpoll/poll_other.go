//go:build unix && !linux

package netpoll

func defaultPoller() (Poller, error) {
	return NewPollPoller()
}
