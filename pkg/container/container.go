// Package container implements the owning containers that hold bean instances
// for each component kind.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/morezero/beanserver/pkg/commsutil"
)

var (
	// ErrObjectNotFound marks a stale or unknown primary key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrStopped is returned by a container that has been stopped.
	ErrStopped = errors.New("container stopped")
)

// Container is the owning container of a deployment.
type Container interface {
	Start(ctx context.Context) error
	Stop()
}

// Bean is a server-resident component instance.
type Bean interface {
	Invoke(ctx context.Context, method string, args commsutil.Args) (interface{}, error)
}

// Creator is implemented by beans that initialize state on create.
type Creator interface {
	Create(ctx context.Context, args commsutil.Args) error
}

// Remover is implemented by beans that release resources on remove.
type Remover interface {
	Remove(ctx context.Context) error
}

// Factory builds a new bean instance.
type Factory func() Bean

// ApplicationError is a checked failure raised by business logic. It is
// replayed to the caller and never discards the instance.
type ApplicationError struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ApplicationError) Error() string {
	return e.Type + ": " + e.Message
}

// NewApplicationError creates an ApplicationError. data may be nil.
func NewApplicationError(typ, message string, data interface{}) *ApplicationError {
	e := &ApplicationError{Type: typ, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return e
}

// IsApplicationError reports whether err carries an ApplicationError.
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

// SystemError wraps an unexpected failure inside a bean or container.
type SystemError struct {
	Cause error
}

func (e *SystemError) Error() string { return "system failure: " + e.Cause.Error() }

func (e *SystemError) Unwrap() error { return e.Cause }

// build runs factory, turning a panic or a nil bean into a SystemError.
func build(factory Factory) (bean Bean, err error) {
	defer func() {
		if r := recover(); r != nil {
			bean, err = nil, &SystemError{Cause: fmt.Errorf("panic in factory: %v", r)}
		}
	}()
	if bean = factory(); bean == nil {
		return nil, &SystemError{Cause: errors.New("factory returned nil bean")}
	}
	return bean, nil
}

// invoke calls a bean method, turning a panic into a SystemError.
func invoke(ctx context.Context, bean Bean, method string, args commsutil.Args) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SystemError{Cause: fmt.Errorf("panic in %s: %v", method, r)}
		}
	}()
	return bean.Invoke(ctx, method, args)
}

func create(ctx context.Context, bean Bean, args commsutil.Args) (err error) {
	c, ok := bean.(Creator)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &SystemError{Cause: fmt.Errorf("panic in create: %v", r)}
		}
	}()
	return c.Create(ctx, args)
}

func remove(ctx context.Context, bean Bean) (err error) {
	r, ok := bean.(Remover)
	if !ok {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = &SystemError{Cause: fmt.Errorf("panic in remove: %v", p)}
		}
	}()
	return r.Remove(ctx)
}

// IsSystemFailure reports whether err should discard the instance: any error
// that is neither an ApplicationError nor ErrObjectNotFound.
func IsSystemFailure(err error) bool {
	return err != nil && !IsApplicationError(err) && !errors.Is(err, ErrObjectNotFound)
}
