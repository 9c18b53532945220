package sync

import "fmt"

// RemoteError is a non-2xx response from the sync endpoint.
//
// For retry purposes it is treated like a transport failure; it exists so
// callers can report the status code the remote answered with.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote rejected request: status %d", e.Status)
	}
	return fmt.Sprintf("remote rejected request: status %d: %s", e.Status, e.Body)
}
