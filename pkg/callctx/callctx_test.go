package callctx

import (
	"context"
	"testing"

	"github.com/morezero/beanserver/pkg/deployment"
)

func testDescriptor(t *testing.T, id string) *deployment.Descriptor {
	t.Helper()
	d, err := deployment.NewDescriptor(deployment.DescriptorParams{ID: id, Kind: deployment.KindStateless})
	if err != nil {
		t.Fatalf("callctx:callctx_test - NewDescriptor: %v", err)
	}
	return d
}

func TestCallContext_SetReset(t *testing.T) {
	cc := New()
	if !cc.IsEmpty() {
		t.Fatal("callctx:callctx_test - new context not empty")
	}
	d := testDescriptor(t, "OrderService")
	cc.Set(d, "req-1")
	if cc.IsEmpty() || cc.Deployment() != d || cc.Request() != "req-1" {
		t.Errorf("callctx:callctx_test - Set did not record fields: %+v", cc)
	}
	cc.Reset()
	if !cc.IsEmpty() {
		t.Error("callctx:callctx_test - Reset left fields set")
	}
}

func TestCallContext_EnterReleaseOnPanic(t *testing.T) {
	cc := New()
	func() {
		defer func() { recover() }()
		release := cc.Enter(testDescriptor(t, "Cart"), "req")
		defer release()
		panic("bean exploded")
	}()
	if !cc.IsEmpty() {
		t.Error("callctx:callctx_test - context not empty after panic")
	}
}

func TestCallContext_EnterNestedRestoresOuter(t *testing.T) {
	cc := New()
	outer := testDescriptor(t, "Outer")
	inner := testDescriptor(t, "Inner")

	releaseOuter := cc.Enter(outer, "outer-req")
	releaseInner := cc.Enter(inner, "inner-req")
	if cc.Deployment() != inner {
		t.Error("callctx:callctx_test - inner deployment not set")
	}
	releaseInner()
	if cc.Deployment() != outer || cc.Request() != "outer-req" {
		t.Error("callctx:callctx_test - outer values not restored")
	}
	releaseOuter()
	if !cc.IsEmpty() {
		t.Error("callctx:callctx_test - context not empty after outer release")
	}
}

func TestContextRoundTrip(t *testing.T) {
	cc := New()
	ctx := NewContext(context.Background(), cc)

	got, ok := FromContext(ctx)
	if !ok || got != cc {
		t.Fatal("callctx:callctx_test - FromContext did not return attached context")
	}
	if Current(ctx) != cc {
		t.Error("callctx:callctx_test - Current did not return attached context")
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Error("callctx:callctx_test - FromContext found a context on a bare ctx")
	}
	if c := Current(context.Background()); c == nil || !c.IsEmpty() {
		t.Error("callctx:callctx_test - Current on bare ctx should return an empty context")
	}
}
