package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound reports EJB_OBJECT_NOT_FOUND.
	ErrObjectNotFound = errors.New("remote object not found")
	// ErrNameNotFound reports JNDI_NOT_FOUND.
	ErrNameNotFound = errors.New("name not found")
	// ErrAuthDenied reports AUTH_DENIED.
	ErrAuthDenied = errors.New("authentication denied")
	// ErrNotHome means a lookup resolved to something other than a component home.
	ErrNotHome = errors.New("not a component home")
)

// RemoteApplicationError is an application exception replayed from the server.
type RemoteApplicationError struct {
	Type    string
	Message string
	Data    json.RawMessage
}

func (e *RemoteApplicationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// DecodeData unmarshals the exception data into v.
func (e *RemoteApplicationError) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// RemoteSystemError is a system exception reported by the server.
type RemoteSystemError struct {
	Message string
}

func (e *RemoteSystemError) Error() string {
	return "remote system failure: " + e.Message
}

// RemoteNamingError is a JNDI_NAMING_EXCEPTION reply.
type RemoteNamingError struct {
	Path    string
	Message string
	Cause   string
}

func (e *RemoteNamingError) Error() string {
	if e.Cause == "" {
		return fmt.Sprintf("naming %q: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("naming %q: %s: %s", e.Path, e.Message, e.Cause)
}
