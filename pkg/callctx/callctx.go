// Package callctx tracks which deployment and request a protocol worker is serving.
//
// Each worker owns one CallContext for its lifetime and attaches it to the
// context.Context of every request it serves. A CallContext is never shared
// between goroutines.
package callctx

import (
	"context"

	"github.com/morezero/beanserver/pkg/deployment"
)

type ctxKey struct{}

// CallContext records the deployment and request currently being invoked.
type CallContext struct {
	deployment *deployment.Descriptor
	request    interface{}
}

// New returns an empty CallContext.
func New() *CallContext { return &CallContext{} }

// Deployment returns the deployment being invoked, or nil.
func (c *CallContext) Deployment() *deployment.Descriptor { return c.deployment }

// Request returns the in-flight request, or nil.
func (c *CallContext) Request() interface{} { return c.request }

// Set replaces both fields.
func (c *CallContext) Set(d *deployment.Descriptor, request interface{}) {
	c.deployment = d
	c.request = request
}

// Reset clears both fields.
func (c *CallContext) Reset() {
	c.deployment = nil
	c.request = nil
}

// IsEmpty reports whether neither field is set.
func (c *CallContext) IsEmpty() bool {
	return c.deployment == nil && c.request == nil
}

// Enter sets the context for one invocation and returns the release func that
// restores the previous values. Callers defer release immediately:
//
//	release := cc.Enter(desc, req)
//	defer release()
//
// A top-level dispatch enters an empty context, so release leaves it empty.
func (c *CallContext) Enter(d *deployment.Descriptor, request interface{}) (release func()) {
	prevDeployment, prevRequest := c.deployment, c.request
	c.Set(d, request)
	return func() {
		c.deployment = prevDeployment
		c.request = prevRequest
	}
}

// NewContext returns a child of ctx carrying cc.
func NewContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, cc)
}

// FromContext returns the CallContext attached to ctx.
func FromContext(ctx context.Context) (*CallContext, bool) {
	cc, ok := ctx.Value(ctxKey{}).(*CallContext)
	return cc, ok && cc != nil
}

// Current returns the CallContext attached to ctx, or a new empty one when none is attached.
func Current(ctx context.Context) *CallContext {
	if cc, ok := FromContext(ctx); ok {
		return cc
	}
	return New()
}
