package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/keygen"
)

// accountBean keeps a balance and fails on request.
type accountBean struct {
	balance float64
}

func (b *accountBean) Invoke(_ context.Context, method string, args commsutil.Args) (interface{}, error) {
	switch method {
	case "deposit":
		var n float64
		if err := args.Decode(0, &n); err != nil {
			return nil, err
		}
		b.balance += n
		return b.balance, nil
	case "getBalance":
		return b.balance, nil
	case "withdrawAll":
		return nil, container.NewApplicationError("InsufficientFunds", "balance too low", nil)
	case "fail":
		return nil, errors.New("disk unplugged")
	default:
		return nil, fmt.Errorf("unknown method %s", method)
	}
}

func (b *accountBean) Create(_ context.Context, args commsutil.Args) error {
	if args.Len() > 0 {
		return args.Decode(0, &b.balance)
	}
	return nil
}

func (b *accountBean) Load(row keygen.Row) error {
	if v, ok := row["balance"].(float64); ok {
		b.balance = v
	}
	return nil
}

func (b *accountBean) Snapshot() keygen.Row { return keygen.Row{"balance": b.balance} }

func accountFactory() container.Bean { return &accountBean{} }

type stubGenerator struct {
	next keygen.Key
	err  error
}

func (g *stubGenerator) Start(context.Context) error { return nil }
func (g *stubGenerator) Stop()                       {}
func (g *stubGenerator) NextKey(context.Context, keygen.Row) (keygen.Key, error) {
	if g.err != nil {
		return 0, &keygen.KeyGenerationError{Generator: "stub", Cause: g.err}
	}
	g.next++
	return g.next, nil
}
func (g *stubGenerator) UpdateCache(cache *keygen.TxCache, txID string, key keygen.Key, row keygen.Row) {
	if txID != "" {
		cache.Put(txID, key, row)
	}
}

func mustDescriptor(t *testing.T, id string, kind deployment.Kind, c container.Container) *deployment.Descriptor {
	t.Helper()
	d, err := deployment.NewDescriptor(deployment.DescriptorParams{
		ID:              id,
		Kind:            kind,
		HomeInterface:   "com.acme." + id + "Home",
		RemoteInterface: "com.acme." + id,
		PrimaryKeyType:  "java.lang.String",
		Container:       c,
	})
	if err != nil {
		t.Fatalf("proxy:helpers_test - NewDescriptor(%s): %v", id, err)
	}
	return d
}

// newFactory registers one deployment per kind and returns the proxy factory.
func newFactory(t *testing.T, gen keygen.Generator, cache *keygen.TxCache) *Factory {
	t.Helper()
	ctx := context.Background()
	reg := deployment.NewRegistry(deployment.NewRegistryParams{})
	containers := []struct {
		id   string
		kind deployment.Kind
		c    container.Container
	}{
		{"Greeter", deployment.KindStateless, container.NewStatelessContainer("Greeter", accountFactory, 2)},
		{"Cart", deployment.KindStateful, container.NewStatefulContainer("Cart", accountFactory, 0)},
		{"Account", deployment.KindEntity, container.NewEntityContainer(container.EntityContainerParams{
			ID: "Account", Factory: accountFactory, Store: container.NewMemoryStore(), Generator: gen, Cache: cache,
		})},
		{"Config", deployment.KindSingleton, container.NewSingletonContainer("Config", accountFactory)},
	}
	for _, c := range containers {
		if _, err := reg.Register(ctx, c.id, mustDescriptor(t, c.id, c.kind, c.c)); err != nil {
			t.Fatalf("proxy:helpers_test - Register(%s): %v", c.id, err)
		}
	}
	return NewFactory(reg)
}

func mustHome(t *testing.T, f *Factory, name string) *Proxy {
	t.Helper()
	p, err := f.HomeFor(name)
	if err != nil {
		t.Fatalf("proxy:helpers_test - HomeFor(%s): %v", name, err)
	}
	return p
}

func mustCreate(t *testing.T, f *Factory, name string, args ...interface{}) *Proxy {
	t.Helper()
	r := mustHome(t, f, name).Invoke(context.Background(), "create", args...)
	if r.Kind != ResultOK {
		t.Fatalf("proxy:helpers_test - %s.create = %s: %v", name, r.Kind, r.Error())
	}
	ref, ok := r.Value.(Ref)
	if !ok {
		t.Fatalf("proxy:helpers_test - %s.create returned %T, want Ref", name, r.Value)
	}
	p, err := f.ProxyFor(ref)
	if err != nil {
		t.Fatalf("proxy:helpers_test - ProxyFor(%+v): %v", ref, err)
	}
	return p
}
