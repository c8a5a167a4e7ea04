// Package handle serializes proxy handles either as self-contained artifacts
// for transport or as process-local references for passivation.
package handle

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/morezero/beanserver/pkg/proxy"
)

const logPrefix = "handle:handle"

var (
	// ErrUnknownToken means a passivation token was never issued or was already restored.
	ErrUnknownToken = errors.New("unknown passivation token")
	// ErrNoRemoteAccess means external serialization was requested without a facility.
	ErrNoRemoteAccess = errors.New("no remote access facility registered")
)

// Mode selects how a handle is serialized.
type Mode int

const (
	// ModeTransport produces a self-contained artifact for another process.
	ModeTransport Mode = iota + 1
	// ModePassivation keeps the live handle in this process under a token.
	ModePassivation
	// ModeExternal mints a protocol-level handle through RemoteAccess.
	ModeExternal
)

func (m Mode) String() string {
	switch m {
	case ModeTransport:
		return "transport"
	case ModePassivation:
		return "passivation"
	case ModeExternal:
		return "external"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeTransport, ModePassivation, ModeExternal:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("%s - invalid mode %d", logPrefix, int(m))
	}
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "transport":
		*m = ModeTransport
	case "passivation":
		*m = ModePassivation
	case "external":
		*m = ModeExternal
	default:
		return fmt.Errorf("%s - invalid mode %q", logPrefix, string(b))
	}
	return nil
}

// Artifact carries enough to rebuild an equivalent proxy anywhere.
// Address is set only for externally minted handles.
type Artifact struct {
	DeploymentID    string              `json:"deploymentId"`
	DeploymentIndex uint32              `json:"deploymentIndex"`
	PrimaryKey      string              `json:"primaryKey,omitempty"`
	Interface       proxy.InterfaceType `json:"interface"`
	Address         string              `json:"address,omitempty"`
}

// ArtifactFor returns the artifact for ref.
func ArtifactFor(ref proxy.Ref) Artifact {
	return Artifact{
		DeploymentID:    ref.DeploymentID,
		DeploymentIndex: ref.DeploymentIndex,
		PrimaryKey:      ref.PrimaryKey,
		Interface:       ref.Interface,
	}
}

// Ref returns the proxy reference the artifact names.
func (a Artifact) Ref() proxy.Ref {
	return proxy.Ref{
		DeploymentID:    a.DeploymentID,
		DeploymentIndex: a.DeploymentIndex,
		PrimaryKey:      a.PrimaryKey,
		Interface:       a.Interface,
	}
}

// Handle is a serializable capability for a live proxy.
type Handle struct {
	proxy *proxy.Proxy
}

func New(p *proxy.Proxy) *Handle { return &Handle{proxy: p} }

// Proxy returns the live proxy.
func (h *Handle) Proxy() *proxy.Proxy { return h.proxy }

// Handle returns the artifact for the wrapped proxy.
func (h *Handle) Handle() Artifact { return ArtifactFor(h.proxy.Ref()) }

// HomeHandle returns the artifact for the home of the wrapped proxy's deployment.
func (h *Handle) HomeHandle() Artifact {
	a := h.Handle()
	a.PrimaryKey = ""
	a.Interface = proxy.Home
	return a
}

// PrimaryKey returns the wrapped proxy's primary key, empty for homes and
// stateless or singleton objects.
func (h *Handle) PrimaryKey() string { return h.proxy.Info().PrimaryKey }

// Encoded is the serialized form of a handle. Artifact is set for transport
// and external modes, Token for passivation.
type Encoded struct {
	Mode     Mode      `json:"mode"`
	Artifact *Artifact `json:"artifact,omitempty"`
	Token    string    `json:"token,omitempty"`
}

// Decode parses data without resolving it.
func Decode(data []byte) (Encoded, error) {
	var e Encoded
	if err := json.Unmarshal(data, &e); err != nil {
		return Encoded{}, fmt.Errorf("%s - decode: %w", logPrefix, err)
	}
	switch e.Mode {
	case ModeTransport, ModeExternal:
		if e.Artifact == nil {
			return Encoded{}, fmt.Errorf("%s - %s handle without artifact", logPrefix, e.Mode)
		}
	case ModePassivation:
		if e.Token == "" {
			return Encoded{}, fmt.Errorf("%s - passivation handle without token", logPrefix)
		}
	default:
		return Encoded{}, fmt.Errorf("%s - handle without mode", logPrefix)
	}
	return e, nil
}
