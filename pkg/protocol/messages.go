package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/beanserver/pkg/commsutil"
)

// InterfaceType is the proxy type a call is addressed through.
type InterfaceType string

const (
	InterfaceHome   InterfaceType = "home"
	InterfaceRemote InterfaceType = "remote"
	InterfaceLocal  InterfaceType = "local"
)

// Valid reports whether t is a known interface type.
func (t InterfaceType) Valid() bool {
	return t == InterfaceHome || t == InterfaceRemote || t == InterfaceLocal
}

// Ref identifies a proxy: a deployment, an optional primary key and the interface type.
type Ref struct {
	DeploymentID    string        `json:"deploymentId"`
	DeploymentIndex uint32        `json:"deploymentIndex"`
	PrimaryKey      string        `json:"primaryKey,omitempty"`
	Interface       InterfaceType `json:"interface"`
}

// AuthRequest carries a principal and credential.
type AuthRequest struct {
	Principal  string `json:"principal"`
	Credential string `json:"credential"`
}

// AuthGrantedPayload is the AUTH_GRANTED payload.
type AuthGrantedPayload struct {
	Identity string `json:"identity"`
}

// AuthDeniedPayload is the AUTH_DENIED payload.
type AuthDeniedPayload struct {
	Reason string `json:"reason"`
}

// NamingRequest looks up a naming path.
type NamingRequest struct {
	Path string `json:"path"`
}

// HomeMetadata is the JNDI_EJBHOME payload.
type HomeMetadata struct {
	DeploymentID    string `json:"deploymentId"`
	DeploymentIndex uint32 `json:"deploymentIndex"`
	Kind            string `json:"kind"`
	HomeInterface   string `json:"homeInterface,omitempty"`
	RemoteInterface string `json:"remoteInterface,omitempty"`
	LocalInterface  string `json:"localInterface,omitempty"`
	PrimaryKeyType  string `json:"primaryKeyType,omitempty"`
	Version         string `json:"version,omitempty"`
}

// ContextListing is the JNDI_CONTEXT payload.
type ContextListing struct {
	Path  string   `json:"path"`
	Names []string `json:"names,omitempty"`
}

// NamingFailure is the JNDI_NOT_FOUND and JNDI_NAMING_EXCEPTION payload.
type NamingFailure struct {
	Path    string `json:"path"`
	Message string `json:"message,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// MethodDescriptor names the invoked method and, optionally, its parameter types.
type MethodDescriptor struct {
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
}

// InvokeRequest addresses one method call.
type InvokeRequest struct {
	DeploymentIndex uint32           `json:"deploymentIndex"`
	PrimaryKey      string           `json:"primaryKey,omitempty"`
	Interface       InterfaceType    `json:"interface"`
	Method          MethodDescriptor `json:"method"`
	Args            commsutil.Args   `json:"args,omitempty"`
}

// Validate checks required fields. An empty interface defaults to remote.
func (r *InvokeRequest) Validate() error {
	if r.DeploymentIndex == 0 {
		return fmt.Errorf("%w: deployment index is required", ErrMalformedFrame)
	}
	if r.Method.Name == "" {
		return fmt.Errorf("%w: method name is required", ErrMalformedFrame)
	}
	if r.Interface == "" {
		r.Interface = InterfaceRemote
	}
	if !r.Interface.Valid() {
		return fmt.Errorf("%w: unknown interface %q", ErrMalformedFrame, r.Interface)
	}
	return nil
}

// InvokeResult is the EJB_OK payload.
type InvokeResult struct {
	Value json.RawMessage `json:"value"`
}

// ApplicationFailure is the EJB_APPLICATION_EXCEPTION payload.
type ApplicationFailure struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SystemFailure is the EJB_SYS_EXCEPTION and EJB_OBJECT_NOT_FOUND payload.
type SystemFailure struct {
	Message string `json:"message"`
}

// Validate checks that the payload has the shape its code requires.
func (r *Response) Validate() error {
	switch r.Code {
	case AuthGranted:
		var p AuthGrantedPayload
		if err := r.Decode(&p); err != nil {
			return err
		}
		if p.Identity == "" {
			return r.invalid("identity is required")
		}
	case AuthDenied:
		var p AuthDeniedPayload
		return r.Decode(&p)
	case JNDIEJBHome:
		var p HomeMetadata
		if err := r.Decode(&p); err != nil {
			return err
		}
		if p.DeploymentID == "" || p.DeploymentIndex == 0 || p.Kind == "" {
			return r.invalid("deployment id, index and kind are required")
		}
	case JNDIContext:
		var p ContextListing
		return r.Decode(&p)
	case JNDINotFound:
		var p NamingFailure
		return r.Decode(&p)
	case JNDINamingException:
		var p NamingFailure
		if err := r.Decode(&p); err != nil {
			return err
		}
		if p.Message == "" {
			return r.invalid("message is required")
		}
	case EJBOK:
		var p InvokeResult
		return r.Decode(&p)
	case EJBApplicationException:
		var p ApplicationFailure
		if err := r.Decode(&p); err != nil {
			return err
		}
		if p.Type == "" {
			return r.invalid("exception type is required")
		}
	case EJBSysException, EJBObjectNotFound:
		var p SystemFailure
		return r.Decode(&p)
	default:
		return fmt.Errorf("%w: unknown response code %d", ErrMalformedFrame, byte(r.Code))
	}
	return nil
}

func (r *Response) invalid(msg string) error {
	return fmt.Errorf("%w: %s payload: %s", ErrMalformedFrame, r.Code, msg)
}
