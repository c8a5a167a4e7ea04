// Package protocol defines the bean invocation wire format.
//
// Every connection carries exactly one request frame followed by one response frame.
// Integers are big-endian; payloads are JSON.
//
//	request:  [type:1][version:1][length:4][payload]
//	response: [code:1][length:4][payload]
package protocol

import (
	"errors"
	"fmt"
)

// Version is the only request version this package speaks.
const Version byte = 1

// MaxFrameSize bounds a payload.
const MaxFrameSize = 16 << 20

var (
	// ErrMalformedFrame wraps every framing fault.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge is returned for payloads over MaxFrameSize.
	ErrFrameTooLarge = fmt.Errorf("%w: payload exceeds %d bytes", ErrMalformedFrame, MaxFrameSize)
)

// RequestType is the leading byte of a request frame.
type RequestType byte

const (
	RequestEJB  RequestType = 0
	RequestJNDI RequestType = 1
	RequestAuth RequestType = 2
)

func (t RequestType) String() string {
	switch t {
	case RequestEJB:
		return "EJB"
	case RequestJNDI:
		return "JNDI"
	case RequestAuth:
		return "AUTH"
	default:
		return fmt.Sprintf("RequestType(%d)", byte(t))
	}
}

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	return t == RequestEJB || t == RequestJNDI || t == RequestAuth
}

// ResponseCode is the leading byte of a response frame. The set is closed.
type ResponseCode byte

const (
	AuthGranted             ResponseCode = 1
	AuthDenied              ResponseCode = 2
	JNDIEJBHome             ResponseCode = 3
	JNDIContext             ResponseCode = 4
	JNDINotFound            ResponseCode = 5
	JNDINamingException     ResponseCode = 6
	EJBOK                   ResponseCode = 7
	EJBApplicationException ResponseCode = 8
	EJBSysException         ResponseCode = 9
	EJBObjectNotFound       ResponseCode = 10
)

var codeNames = map[ResponseCode]string{
	AuthGranted:             "AUTH_GRANTED",
	AuthDenied:              "AUTH_DENIED",
	JNDIEJBHome:             "JNDI_EJBHOME",
	JNDIContext:             "JNDI_CONTEXT",
	JNDINotFound:            "JNDI_NOT_FOUND",
	JNDINamingException:     "JNDI_NAMING_EXCEPTION",
	EJBOK:                   "EJB_OK",
	EJBApplicationException: "EJB_APPLICATION_EXCEPTION",
	EJBSysException:         "EJB_SYS_EXCEPTION",
	EJBObjectNotFound:       "EJB_OBJECT_NOT_FOUND",
}

func (c ResponseCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ResponseCode(%d)", byte(c))
}

// Valid reports whether c belongs to the closed response code set.
func (c ResponseCode) Valid() bool {
	_, ok := codeNames[c]
	return ok
}
