package client

import (
	"fmt"

	"github.com/morezero/beanserver/pkg/handle"
)

// RemoteAccess mints externally addressable handles pointing at addr.
type RemoteAccess struct {
	Addr string
}

// MintHandle stamps the artifact with the server address.
func (r RemoteAccess) MintHandle(a handle.Artifact) (handle.Artifact, error) {
	if r.Addr == "" {
		return handle.Artifact{}, fmt.Errorf("client:remote_access - no server address for %s", a.DeploymentID)
	}
	a.Address = r.Addr
	return a, nil
}

// ProxyFromHandle builds a proxy from a transport or external handle.
// An external handle that carries an address is dialed at that address.
func (c *Client) ProxyFromHandle(data []byte) (*RemoteProxy, error) {
	e, err := handle.Decode(data)
	if err != nil {
		return nil, err
	}
	if e.Mode == handle.ModePassivation {
		return nil, fmt.Errorf("client:remote_access - passivated handles cannot leave their process")
	}
	target := c
	if e.Artifact.Address != "" && e.Artifact.Address != c.addr {
		target = New(NewClientParams{Addr: e.Artifact.Address, Timeout: c.timeout})
	}
	return target.Proxy(e.Artifact.Ref()), nil
}
