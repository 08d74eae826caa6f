package relay

import "errors"

var (
	// ErrServerClosed - returned by Serve after Shutdown or Close.
	ErrServerClosed = errors.New("relay.Server: closed")

	// ErrAlreadyServing - returned by Serve when the event loop is running already.
	ErrAlreadyServing = errors.New("relay.Server: already serving")

	// ErrShortWrite - peer socket buffer is full, the rest of payload is dropped.
	ErrShortWrite = errors.New("relay.Server: short write")
)
