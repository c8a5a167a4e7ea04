package proxy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/morezero/beanserver/pkg/container"
)

// ResultKind discriminates the outcome of an invocation.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultApplicationError
	ResultSystemError
	ResultNotFound
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultApplicationError:
		return "application-error"
	case ResultSystemError:
		return "system-error"
	case ResultNotFound:
		return "not-found"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the outcome of Handler.Invoke. Exactly one of Value, AppErr or Err
// is meaningful, selected by Kind.
type Result struct {
	Kind   ResultKind
	Value  interface{}
	AppErr *container.ApplicationError
	Err    error
}

// OK wraps a successful return value.
func OK(v interface{}) Result { return Result{Kind: ResultOK, Value: v} }

// AppError wraps a checked application failure.
func AppError(e *container.ApplicationError) Result {
	return Result{Kind: ResultApplicationError, AppErr: e}
}

// SysError wraps an unexpected failure.
func SysError(err error) Result { return Result{Kind: ResultSystemError, Err: err} }

// NotFound reports a missing target instance.
func NotFound(err error) Result { return Result{Kind: ResultNotFound, Err: err} }

// FromError classifies err. A nil err yields OK(v).
func FromError(v interface{}, err error) Result {
	if err == nil {
		return OK(v)
	}
	var appErr *container.ApplicationError
	if errors.As(err, &appErr) {
		return AppError(appErr)
	}
	if errors.Is(err, container.ErrObjectNotFound) {
		return NotFound(err)
	}
	return SysError(err)
}

// Error returns the failure as an error, or nil for OK.
func (r Result) Error() error {
	switch r.Kind {
	case ResultOK:
		return nil
	case ResultApplicationError:
		return r.AppErr
	default:
		return r.Err
	}
}

// Decode copies the value into v through JSON, the way the wire path does.
func (r Result) Decode(v interface{}) error {
	if r.Kind != ResultOK {
		return r.Error()
	}
	raw, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Errorf("proxy:result - encode value: %w", err)
	}
	return json.Unmarshal(raw, v)
}
