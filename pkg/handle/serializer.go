package handle

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/beanserver/pkg/proxy"
)

const serializerLogPrefix = "handle:serializer"

// ProxyFactory rebuilds a proxy from a reference.
type ProxyFactory interface {
	ProxyFor(ref proxy.Ref) (*proxy.Proxy, error)
}

// RemoteAccess mints protocol-level handles for references that leave the
// process outside a transport copy.
type RemoteAccess interface {
	MintHandle(a Artifact) (Artifact, error)
}

// SerializerParams configures a Serializer. Remote may be nil when external
// mode is never used.
type SerializerParams struct {
	Factory    ProxyFactory
	Passivator *Passivator
	Remote     RemoteAccess
}

// Serializer marshals and unmarshals handles in an explicit mode.
type Serializer struct {
	factory    ProxyFactory
	passivator *Passivator
	remote     RemoteAccess
}

func NewSerializer(p SerializerParams) *Serializer {
	passivator := p.Passivator
	if passivator == nil {
		passivator = NewPassivator()
	}
	return &Serializer{factory: p.Factory, passivator: passivator, remote: p.Remote}
}

// Marshal serializes h in mode.
func (s *Serializer) Marshal(h *Handle, mode Mode) ([]byte, error) {
	e := Encoded{Mode: mode}
	switch mode {
	case ModeTransport:
		a := h.Handle()
		e.Artifact = &a
	case ModePassivation:
		tok, err := s.passivator.Put(h)
		if err != nil {
			return nil, err
		}
		e.Token = tok
	case ModeExternal:
		if s.remote == nil {
			return nil, fmt.Errorf("%s - %s: %w", serializerLogPrefix, h.Handle().DeploymentID, ErrNoRemoteAccess)
		}
		a, err := s.remote.MintHandle(h.Handle())
		if err != nil {
			return nil, fmt.Errorf("%s - mint external handle: %w", serializerLogPrefix, err)
		}
		e.Artifact = &a
	default:
		return nil, fmt.Errorf("%s - invalid mode %d", serializerLogPrefix, int(mode))
	}
	return json.Marshal(e)
}

// Unmarshal rebuilds a handle. Artifacts resolve through the proxy factory;
// passivation tokens return the identical handle that was marshaled.
func (s *Serializer) Unmarshal(data []byte) (*Handle, error) {
	e, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if e.Mode == ModePassivation {
		return s.passivator.Take(e.Token)
	}
	if s.factory == nil {
		return nil, fmt.Errorf("%s - no proxy factory to resolve %s", serializerLogPrefix, e.Artifact.DeploymentID)
	}
	p, err := s.factory.ProxyFor(e.Artifact.Ref())
	if err != nil {
		return nil, fmt.Errorf("%s - resolve %s: %w", serializerLogPrefix, e.Artifact.DeploymentID, err)
	}
	return New(p), nil
}

// Passivator returns the serializer's passivation store.
func (s *Serializer) Passivator() *Passivator { return s.passivator }
