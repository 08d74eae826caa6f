package relay

// partReason - describes why connection was torn down.
type partReason int

const (
	_ partReason = iota
	// peer closed the connection (zero-byte read)
	partLeft
	// read failed
	partError
	// server is stopping
	partShutdown
)

func (r partReason) String() string {
	switch r {
	case partLeft:
		return "left"
	case partError:
		return "error"
	case partShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
