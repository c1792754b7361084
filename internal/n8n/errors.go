package n8n

import (
	"errors"
	"fmt"
)

// ErrRemoteTimeout marks a remote call exceeding its bounded deadline.
// Retry policy belongs to the caller, never to the client.
var ErrRemoteTimeout = errors.New("n8n: remote request timed out")

// RemoteAPIError is any non-success HTTP status from the remote API
type RemoteAPIError struct {
	Status  int
	Message string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("n8n: remote API error (status %d): %s", e.Status, e.Message)
}
