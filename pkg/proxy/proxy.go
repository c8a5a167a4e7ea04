package proxy

import (
	"context"
	"fmt"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/deployment"
)

// Proxy is an in-process stand-in for a home or component object.
// Arguments are copied through the JSON codec, so callers observe the same
// pass-by-value behavior as remote clients.
type Proxy struct {
	desc    *deployment.Descriptor
	info    Info
	handler Handler
}

// New builds a proxy of the given interface type for the deployment at index.
func New(desc *deployment.Descriptor, index uint32, pk string, typ InterfaceType) (*Proxy, error) {
	h, err := NewHandler(desc, typ)
	if err != nil {
		return nil, err
	}
	return &Proxy{
		desc:    desc,
		handler: h,
		info: Info{
			DeploymentID:    desc.ID(),
			DeploymentIndex: index,
			PrimaryKey:      pk,
			Container:       desc.Container(),
			Type:            typ,
		},
	}, nil
}

func (p *Proxy) Info() Info                         { return p.info }
func (p *Proxy) Ref() Ref                           { return p.info.Ref() }
func (p *Proxy) Descriptor() *deployment.Descriptor { return p.desc }

// Invoke encodes args and calls method.
func (p *Proxy) Invoke(ctx context.Context, method string, args ...interface{}) Result {
	encoded, err := commsutil.EncodeArgs(args...)
	if err != nil {
		return SysError(fmt.Errorf("proxy:proxy - %s.%s: encode args: %w", p.info.DeploymentID, method, err))
	}
	return p.InvokeArgs(ctx, Method{Name: method}, encoded)
}

// InvokeArgs calls method with pre-encoded args.
func (p *Proxy) InvokeArgs(ctx context.Context, method Method, args commsutil.Args) Result {
	return p.handler.Invoke(ctx, method, args.Copy(), p.info)
}

// Factory materializes proxies from references using the deployment registry.
type Factory struct {
	registry *deployment.Registry
}

func NewFactory(registry *deployment.Registry) *Factory {
	return &Factory{registry: registry}
}

// ProxyFor resolves ref by deployment index. A ref whose deployment ID no
// longer matches the index is stale and reported as not found.
func (f *Factory) ProxyFor(ref Ref) (*Proxy, error) {
	entry, err := f.registry.LookupIndex(ref.DeploymentIndex)
	if err != nil {
		return nil, err
	}
	if ref.DeploymentID != "" && ref.DeploymentID != entry.Descriptor.ID() {
		return nil, fmt.Errorf("proxy:proxy - ref to %s at index %d now names %s: %w",
			ref.DeploymentID, ref.DeploymentIndex, entry.Descriptor.ID(), deployment.ErrNotFound)
	}
	typ := ref.Interface
	if typ == "" {
		typ = Remote
	}
	return New(entry.Descriptor, entry.Index, ref.PrimaryKey, typ)
}

// HomeFor returns the home proxy of the named deployment.
func (f *Factory) HomeFor(name string) (*Proxy, error) {
	entry, err := f.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(entry.Descriptor, entry.Index, "", Home)
}
