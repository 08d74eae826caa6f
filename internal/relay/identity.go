package relay

import "github.com/google/uuid"

// sessionIdentifier - generates identifier of accepted connection.
type sessionIdentifier func() string

func defaultSessionIdentifier() string {
	return uuid.NewString()
}
