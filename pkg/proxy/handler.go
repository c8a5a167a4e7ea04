// Package proxy implements the invocation handlers that route a call on a
// home or object proxy to the owning container of a deployment.
package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/protocol"
)

const logPrefix = "proxy:handler"

var (
	// ErrUnknownKind is a fatal configuration error: no handler exists for the kind.
	ErrUnknownKind = errors.New("unknown component kind")
	// ErrContainerMismatch means a descriptor's container does not serve its kind.
	ErrContainerMismatch = errors.New("container does not match component kind")
)

// InterfaceType is the proxy type a call is addressed through.
type InterfaceType = protocol.InterfaceType

const (
	Home   = protocol.InterfaceHome
	Remote = protocol.InterfaceRemote
	Local  = protocol.InterfaceLocal
)

// Ref identifies a proxy across process boundaries.
type Ref = protocol.Ref

// Method names the invoked method.
type Method struct {
	Name   string
	Params []string
}

// Info describes the proxy a call arrives through.
type Info struct {
	DeploymentID    string
	DeploymentIndex uint32
	PrimaryKey      string
	Container       container.Container
	Type            InterfaceType
}

// Ref returns the cross-process reference for the proxy described by i.
func (i Info) Ref() Ref {
	return Ref{DeploymentID: i.DeploymentID, DeploymentIndex: i.DeploymentIndex, PrimaryKey: i.PrimaryKey, Interface: i.Type}
}

// Handler invokes a method on behalf of a proxy.
type Handler interface {
	Invoke(ctx context.Context, method Method, args commsutil.Args, info Info) Result
}

// NewHandler returns the handler variant for desc's kind and the interface type.
func NewHandler(desc *deployment.Descriptor, typ InterfaceType) (Handler, error) {
	c := desc.Container()
	if c == nil {
		return nil, fmt.Errorf("%s - %s has no container: %w", logPrefix, desc.ID(), ErrContainerMismatch)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%s - %s: unknown interface type %q", logPrefix, desc.ID(), typ)
	}

	switch desc.Kind() {
	case deployment.KindStateless:
		sc, ok := c.(*container.StatelessContainer)
		if !ok {
			return nil, mismatch(desc, c)
		}
		if typ == Home {
			return &HomeHandler{kind: desc.Kind(), stateless: sc}, nil
		}
		return &StatelessHandler{container: sc}, nil
	case deployment.KindStateful:
		sc, ok := c.(*container.StatefulContainer)
		if !ok {
			return nil, mismatch(desc, c)
		}
		if typ == Home {
			return &HomeHandler{kind: desc.Kind(), stateful: sc}, nil
		}
		return &StatefulHandler{container: sc}, nil
	case deployment.KindEntity:
		ec, ok := c.(*container.EntityContainer)
		if !ok {
			return nil, mismatch(desc, c)
		}
		if typ == Home {
			return &HomeHandler{kind: desc.Kind(), entity: ec}, nil
		}
		return &EntityHandler{container: ec}, nil
	case deployment.KindSingleton:
		sc, ok := c.(*container.SingletonContainer)
		if !ok {
			return nil, mismatch(desc, c)
		}
		if typ == Home {
			return &HomeHandler{kind: desc.Kind(), singleton: sc}, nil
		}
		return &SingletonHandler{container: sc}, nil
	default:
		return nil, fmt.Errorf("%s - %s (%s): %w", logPrefix, desc.ID(), desc.Kind(), ErrUnknownKind)
	}
}

func mismatch(desc *deployment.Descriptor, c container.Container) error {
	return fmt.Errorf("%s - %s (%s) owned by %T: %w", logPrefix, desc.ID(), desc.Kind(), c, ErrContainerMismatch)
}

const methodRemove = "remove"
