package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/keygen"
)

func TestNewHandler_Variants(t *testing.T) {
	stateless := container.NewStatelessContainer("X", accountFactory, 1)
	tests := []struct {
		name     string
		kind     deployment.Kind
		c        container.Container
		typ      InterfaceType
		wantType string
		wantErr  error
	}{
		{"stateless remote", deployment.KindStateless, stateless, Remote, "*proxy.StatelessHandler", nil},
		{"stateless home", deployment.KindStateless, stateless, Home, "*proxy.HomeHandler", nil},
		{"stateful local", deployment.KindStateful, container.NewStatefulContainer("X", accountFactory, 0), Local, "*proxy.StatefulHandler", nil},
		{"singleton remote", deployment.KindSingleton, container.NewSingletonContainer("X", accountFactory), Remote, "*proxy.SingletonHandler", nil},
		{"message driven", deployment.KindMessageDriven, stateless, Remote, "", ErrUnknownKind},
		{"wrong container", deployment.KindEntity, stateless, Remote, "", ErrContainerMismatch},
		{"no container", deployment.KindStateless, nil, Remote, "", ErrContainerMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(mustDescriptor(t, "X", tt.kind, tt.c), tt.typ)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("proxy:proxy_test - NewHandler err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("proxy:proxy_test - NewHandler: %v", err)
			}
			if got := fmt.Sprintf("%T", h); got != tt.wantType {
				t.Errorf("proxy:proxy_test - handler = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestStateless_CreateAndInvoke(t *testing.T) {
	f := newFactory(t, &stubGenerator{}, nil)
	p := mustCreate(t, f, "Greeter")
	ctx := context.Background()

	if ref := p.Ref(); ref.PrimaryKey != "" || ref.Interface != Remote || ref.DeploymentID != "Greeter" {
		t.Errorf("proxy:proxy_test - stateless ref = %+v", ref)
	}
	var balance float64
	if err := p.Invoke(ctx, "deposit", 5).Decode(&balance); err != nil || balance < 5 {
		t.Errorf("proxy:proxy_test - deposit = %v, %v", balance, err)
	}
	if r := p.Invoke(ctx, "remove"); r.Kind != ResultOK {
		t.Errorf("proxy:proxy_test - stateless remove = %s", r.Kind)
	}
	if r := p.Invoke(ctx, "withdrawAll"); r.Kind != ResultApplicationError || r.AppErr.Type != "InsufficientFunds" {
		t.Errorf("proxy:proxy_test - withdrawAll = %s %v", r.Kind, r.Error())
	}
}

func TestStateful_SystemFailureRemovesSession(t *testing.T) {
	f := newFactory(t, &stubGenerator{}, nil)
	p := mustCreate(t, f, "Cart", 10)
	ctx := context.Background()

	if p.Info().PrimaryKey == "" {
		t.Fatal("proxy:proxy_test - stateful create returned no session key")
	}
	var balance float64
	if err := p.Invoke(ctx, "deposit", 32).Decode(&balance); err != nil || balance != 42 {
		t.Fatalf("proxy:proxy_test - deposit = %v, %v; want 42", balance, err)
	}
	if r := p.Invoke(ctx, "fail"); r.Kind != ResultSystemError {
		t.Fatalf("proxy:proxy_test - fail = %s, want system-error", r.Kind)
	}
	r := p.Invoke(ctx, "getBalance")
	if r.Kind != ResultNotFound || !errors.Is(r.Error(), container.ErrObjectNotFound) {
		t.Errorf("proxy:proxy_test - after system failure = %s %v, want not-found", r.Kind, r.Error())
	}
}

func TestStateful_RemoveThroughHome(t *testing.T) {
	f := newFactory(t, &stubGenerator{}, nil)
	p := mustCreate(t, f, "Cart")
	ctx := context.Background()

	home := mustHome(t, f, "Cart")
	if r := home.Invoke(ctx, "remove", p.Info().PrimaryKey); r.Kind != ResultOK {
		t.Fatalf("proxy:proxy_test - home remove = %s %v", r.Kind, r.Error())
	}
	if r := p.Invoke(ctx, "getBalance"); r.Kind != ResultNotFound {
		t.Errorf("proxy:proxy_test - removed session = %s, want not-found", r.Kind)
	}
	if r := (&StatefulHandler{}).Invoke(ctx, Method{Name: "getBalance"}, nil, Info{}); r.Kind != ResultNotFound {
		t.Errorf("proxy:proxy_test - keyless stateful call = %s, want not-found", r.Kind)
	}
}

func TestEntity_CreateFindInvoke(t *testing.T) {
	cache := keygen.NewTxCache()
	f := newFactory(t, &stubGenerator{}, cache)
	ctx := context.Background()
	home := mustHome(t, f, "Account")

	first := mustCreate(t, f, "Account", 7)
	mustCreate(t, f, "Account", 7)
	if pk := first.Info().PrimaryKey; pk != "1" {
		t.Errorf("proxy:proxy_test - first entity key = %q, want 1", pk)
	}
	if cache.Len() != 0 {
		t.Errorf("proxy:proxy_test - tx cache holds %d rows after create committed", cache.Len())
	}

	r := home.Invoke(ctx, "findByPrimaryKey", "1")
	if ref, ok := r.Value.(Ref); r.Kind != ResultOK || !ok || ref.PrimaryKey != "1" {
		t.Errorf("proxy:proxy_test - findByPrimaryKey = %s %+v", r.Kind, r.Value)
	}
	r = home.Invoke(ctx, "findAll")
	if refs, ok := r.Value.([]Ref); r.Kind != ResultOK || !ok || len(refs) != 2 {
		t.Errorf("proxy:proxy_test - findAll = %s %+v", r.Kind, r.Value)
	}
	if r := home.Invoke(ctx, "findByBalance", 99); r.Kind != ResultNotFound {
		t.Errorf("proxy:proxy_test - findByBalance(99) = %s, want not-found", r.Kind)
	}
	if r := home.Invoke(ctx, "findByPrimaryKey", "404"); r.Kind != ResultNotFound {
		t.Errorf("proxy:proxy_test - findByPrimaryKey(404) = %s, want not-found", r.Kind)
	}

	var balance float64
	if err := first.Invoke(ctx, "deposit", 3).Decode(&balance); err != nil || balance != 10 {
		t.Errorf("proxy:proxy_test - deposit = %v, %v; want 10", balance, err)
	}
	if r := first.Invoke(ctx, "remove"); r.Kind != ResultOK {
		t.Errorf("proxy:proxy_test - remove = %s %v", r.Kind, r.Error())
	}
	if r := first.Invoke(ctx, "getBalance"); r.Kind != ResultNotFound {
		t.Errorf("proxy:proxy_test - removed entity = %s, want not-found", r.Kind)
	}
}

func TestEntity_CallerTransactionIsNotCommitted(t *testing.T) {
	cache := keygen.NewTxCache()
	f := newFactory(t, &stubGenerator{}, cache)
	ctx := keygen.WithTxID(context.Background(), "tx-outer")

	if r := mustHome(t, f, "Account").Invoke(ctx, "create", 1); r.Kind != ResultOK {
		t.Fatalf("proxy:proxy_test - create = %s %v", r.Kind, r.Error())
	}
	if cache.Len() != 1 {
		t.Errorf("proxy:proxy_test - tx cache = %d rows, want caller's row kept", cache.Len())
	}
}

func TestEntity_KeyGenerationFailureIsSystemError(t *testing.T) {
	f := newFactory(t, &stubGenerator{err: errors.New("sequence exhausted")}, nil)
	r := mustHome(t, f, "Account").Invoke(context.Background(), "create")
	if r.Kind != ResultSystemError {
		t.Errorf("proxy:proxy_test - create with failing generator = %s, want system-error", r.Kind)
	}
}

func TestHome_UnsupportedOperations(t *testing.T) {
	f := newFactory(t, &stubGenerator{}, nil)
	ctx := context.Background()

	if r := mustHome(t, f, "Greeter").Invoke(ctx, "findByPrimaryKey", "1"); r.Kind != ResultSystemError {
		t.Errorf("proxy:proxy_test - stateless find = %s, want system-error", r.Kind)
	}
	if r := mustHome(t, f, "Config").Invoke(ctx, "remove", "1"); r.Kind != ResultSystemError {
		t.Errorf("proxy:proxy_test - singleton home remove = %s, want system-error", r.Kind)
	}
	if r := mustHome(t, f, "Config").Invoke(ctx, "deposit", 1); r.Kind != ResultSystemError {
		t.Errorf("proxy:proxy_test - non-home method on home = %s, want system-error", r.Kind)
	}
	singleton := mustCreate(t, f, "Config")
	if r := singleton.Invoke(ctx, "remove"); r.Kind != ResultSystemError {
		t.Errorf("proxy:proxy_test - singleton remove = %s, want system-error", r.Kind)
	}
}

func TestFactory_StaleRef(t *testing.T) {
	f := newFactory(t, &stubGenerator{}, nil)
	if _, err := f.ProxyFor(Ref{DeploymentID: "Cart", DeploymentIndex: 1}); !errors.Is(err, deployment.ErrNotFound) {
		t.Errorf("proxy:proxy_test - stale ref err = %v, want ErrNotFound", err)
	}
	if _, err := f.ProxyFor(Ref{DeploymentIndex: 99}); !errors.Is(err, deployment.ErrNotFound) {
		t.Errorf("proxy:proxy_test - unknown index err = %v, want ErrNotFound", err)
	}
	p, err := f.ProxyFor(Ref{DeploymentID: "Greeter", DeploymentIndex: 1})
	if err != nil || p.Info().Type != Remote {
		t.Errorf("proxy:proxy_test - ProxyFor default interface = %v, %v", p, err)
	}
}

func TestFromError_Classifies(t *testing.T) {
	appErr := container.NewApplicationError("E", "m", nil)
	tests := []struct {
		err  error
		want ResultKind
	}{
		{nil, ResultOK},
		{appErr, ResultApplicationError},
		{container.ErrObjectNotFound, ResultNotFound},
		{errors.New("boom"), ResultSystemError},
		{&container.SystemError{Cause: errors.New("boom")}, ResultSystemError},
	}
	for _, tt := range tests {
		if got := FromError(nil, tt.err).Kind; got != tt.want {
			t.Errorf("proxy:proxy_test - FromError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
